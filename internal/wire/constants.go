package wire

type FrameType uint16

const (
	FrameText         FrameType = 0x0001
	FrameFileStart    FrameType = 0x0010
	FrameFile         FrameType = 0x0011
	FrameFileChunk    FrameType = 0x0012
	FrameFileComplete FrameType = 0x0013
)

func (t FrameType) String() string {
	switch t {
	case FrameText:
		return "TEXT"
	case FrameFileStart:
		return "FILE_START"
	case FrameFile:
		return "FILE"
	case FrameFileChunk:
		return "FILE_CHUNK"
	case FrameFileComplete:
		return "FILE_COMPLETE"
	default:
		return "UNKNOWN"
	}
}
