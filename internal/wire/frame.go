// Package wire defines the application frames exchanged over the peer
// data channel and their codec. Frames form a closed union dispatched
// exhaustively on receipt; anything outside the union is dropped by
// the receiver rather than treated as fatal.
package wire

// Frame is one logical application message carried by the data channel.
type Frame interface {
	Kind() FrameType
}

// Envelope wraps every frame with the sender's sequence number. Seq
// increases by one per sent frame; delivery order within a channel is
// already guaranteed by the transport, the sequence only records the
// sender's view for the receiving log.
type Envelope struct {
	Seq   uint64
	Frame Frame
}

// Text is a chat message.
type Text struct {
	Body string
}

func (Text) Kind() FrameType { return FrameText }

// FileStart announces an upcoming file payload. TotalChunks zero means
// the payload follows as a single File frame; otherwise TotalChunks
// FileChunk frames follow, terminated by a FileComplete.
type FileStart struct {
	Name        string
	Size        int64
	TotalChunks uint32
}

func (FileStart) Kind() FrameType { return FrameFileStart }

// File carries a complete file payload in one frame.
type File struct {
	Name string
	Size int64
	Data []byte
}

func (File) Kind() FrameType { return FrameFile }

// FileChunk carries one slice of the announced file, in send order.
type FileChunk struct {
	Index uint32
	Data  []byte
}

func (FileChunk) Kind() FrameType { return FrameFileChunk }

// FileComplete ends a chunked transfer. Checksum is the hex encoded
// SHA-256 of the reassembled payload.
type FileComplete struct {
	Name     string
	Checksum string
}

func (FileComplete) Kind() FrameType { return FrameFileComplete }
