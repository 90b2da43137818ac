package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/peerline/peerline/internal/chatlog"
	"github.com/peerline/peerline/internal/identity"
	"github.com/peerline/peerline/internal/transport"
	"github.com/peerline/peerline/internal/wire"
)

// fileAssembly accumulates one chunked inbound transfer.
type fileAssembly struct {
	name  string
	size  int64
	total uint32
	next  uint32
	data  []byte
}

// receiver drains one data link until it dies. Sequence tracking and
// transfer reassembly live here, not on the session, so their state
// cannot leak across connections.
type receiver struct {
	s       *Session
	remote  identity.ID
	lastSeq uint64
	file    *fileAssembly
}

func (r *receiver) run(link *transport.Link) {
	for {
		select {
		case data := <-link.Recv():
			r.handle(data)
		case <-link.Done():
			r.drain(link)
			r.s.disconnect(link, fmt.Sprintf("disconnected from %s", r.remote))
			return
		}
	}
}

// drain empties what the link buffered before it died.
func (r *receiver) drain(link *transport.Link) {
	for {
		select {
		case data := <-link.Recv():
			r.handle(data)
		default:
			return
		}
	}
}

func (r *receiver) handle(data []byte) {
	env, err := r.s.codec.DecodeFromBytes(data)
	if err != nil {
		r.s.logger.Debug("dropping undecodable frame", "error", err)
		return
	}

	if env.Seq != r.lastSeq+1 {
		r.s.logger.Debug("sender sequence gap", "expected", r.lastSeq+1, "got", env.Seq)
	}
	r.lastSeq = env.Seq

	switch f := env.Frame.(type) {
	case *wire.Text:
		r.s.log.Append(chatlog.Message{
			Role:      chatlog.RoleRemote,
			Kind:      chatlog.KindText,
			Content:   f.Body,
			RemoteSeq: env.Seq,
		})
	case *wire.FileStart:
		r.handleFileStart(f)
	case *wire.File:
		r.handleWholeFile(f, env.Seq)
	case *wire.FileChunk:
		r.handleChunk(f)
	case *wire.FileComplete:
		r.handleComplete(f, env.Seq)
	case nil:
		r.s.logger.Debug("dropping empty envelope")
	default:
		// Unknown but well formed: a newer peer. Drop it, do not die.
		r.s.logger.Debug("dropping unhandled frame", "kind", env.Frame.Kind().String())
	}
}

func (r *receiver) handleFileStart(f *wire.FileStart) {
	r.s.log.AppendNotice(fmt.Sprintf("receiving %s (%d bytes) from %s", f.Name, f.Size, r.remote))

	if f.TotalChunks == 0 {
		// Single frame payload follows.
		r.file = nil
		return
	}
	if r.file != nil {
		r.s.logger.Debug("transfer restarted", "name", f.Name)
	}

	capacity := f.Size
	if capacity < 0 {
		capacity = 0
	}
	r.file = &fileAssembly{
		name:  f.Name,
		size:  f.Size,
		total: f.TotalChunks,
		data:  make([]byte, 0, capacity),
	}
}

func (r *receiver) handleWholeFile(f *wire.File, seq uint64) {
	r.file = nil
	r.s.log.Append(chatlog.Message{
		Role:      chatlog.RoleRemote,
		Kind:      chatlog.KindFile,
		Content:   f.Name,
		FileName:  f.Name,
		FileSize:  f.Size,
		Payload:   f.Data,
		RemoteSeq: seq,
	})
	r.s.progress(f.Name, len(f.Data), len(f.Data))
}

func (r *receiver) handleChunk(f *wire.FileChunk) {
	if r.file == nil {
		r.s.logger.Debug("chunk without a transfer", "index", f.Index)
		return
	}
	if f.Index != r.file.next {
		r.s.log.AppendNotice(fmt.Sprintf("transfer of %s aborted: chunk out of order", r.file.name))
		r.file = nil
		return
	}

	r.file.data = append(r.file.data, f.Data...)
	r.file.next++
	r.s.progress(r.file.name, len(r.file.data), int(r.file.size))
}

func (r *receiver) handleComplete(f *wire.FileComplete, seq uint64) {
	asm := r.file
	r.file = nil

	if asm == nil {
		r.s.logger.Debug("file complete without a transfer", "name", f.Name)
		return
	}
	if asm.next != asm.total {
		r.s.log.AppendNotice(fmt.Sprintf("transfer of %s aborted: missing chunks", asm.name))
		return
	}

	sum := sha256.Sum256(asm.data)
	if hex.EncodeToString(sum[:]) != f.Checksum {
		r.s.log.AppendNotice(fmt.Sprintf("transfer of %s failed: %v", asm.name, ErrChecksum))
		return
	}

	r.s.log.Append(chatlog.Message{
		Role:      chatlog.RoleRemote,
		Kind:      chatlog.KindFile,
		Content:   asm.name,
		FileName:  asm.name,
		FileSize:  asm.size,
		Payload:   asm.data,
		RemoteSeq: seq,
	})
}
