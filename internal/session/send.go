package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/peerline/peerline/internal/chatlog"
	"github.com/peerline/peerline/internal/transport"
	"github.com/peerline/peerline/internal/wire"
)

// SendText ships one chat message and echoes it into the local log.
func (s *Session) SendText(body string) error {
	link, err := s.currentLink()
	if err != nil {
		return err
	}

	s.log.AppendText(chatlog.RoleSelf, body)

	s.sendMu.Lock()
	err = s.sendFrame(link, &wire.Text{Body: body})
	s.sendMu.Unlock()
	if err != nil {
		s.log.AppendNotice("message failed to send")
		return err
	}
	return nil
}

// SendFile reads r fully into memory and ships it. In chunked mode
// the payload travels as numbered slices closed by a checksum; in
// compat mode it travels as a single frame, which any peer
// understands. Transfers hold the link's write slot end to end, so a
// concurrent SendFile waits rather than interleaving its chunks.
// Losing the connection mid transfer loses the file; nothing is
// retried.
func (s *Session) SendFile(ctx context.Context, name string, r io.Reader) error {
	link, err := s.currentLink()
	if err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("session: read file: %w", err)
	}

	s.sendMu.Lock()
	if s.cfg.ChunkedTransfers {
		err = s.sendChunked(ctx, link, name, data)
	} else {
		err = s.sendWhole(link, name, data)
	}
	s.sendMu.Unlock()
	if err != nil {
		s.log.AppendNotice(fmt.Sprintf("transfer of %s failed", name))
		return err
	}

	s.log.AppendFile(chatlog.RoleSelf, name, int64(len(data)), data)
	return nil
}

func (s *Session) sendWhole(link *transport.Link, name string, data []byte) error {
	start := &wire.FileStart{Name: name, Size: int64(len(data))}
	if err := s.sendFrame(link, start); err != nil {
		return err
	}

	file := &wire.File{Name: name, Size: int64(len(data)), Data: data}
	if err := s.sendFrame(link, file); err != nil {
		return err
	}

	s.progress(name, len(data), len(data))
	return nil
}

func (s *Session) sendChunked(ctx context.Context, link *transport.Link, name string, data []byte) error {
	chunkSize := s.cfg.ChunkSize
	total := uint32((len(data) + chunkSize - 1) / chunkSize)
	if total == 0 {
		// Empty files still travel as one chunk so the receiver's
		// bookkeeping stays uniform.
		total = 1
	}

	start := &wire.FileStart{Name: name, Size: int64(len(data)), TotalChunks: total}
	if err := s.sendFrame(link, start); err != nil {
		return err
	}

	for i := uint32(0); i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lo := int(i) * chunkSize
		hi := lo + chunkSize
		if hi > len(data) {
			hi = len(data)
		}
		if err := s.sendFrame(link, &wire.FileChunk{Index: i, Data: data[lo:hi]}); err != nil {
			return err
		}
		s.progress(name, hi, len(data))
	}

	sum := sha256.Sum256(data)
	complete := &wire.FileComplete{Name: name, Checksum: hex.EncodeToString(sum[:])}
	return s.sendFrame(link, complete)
}

// sendFrame wraps one frame in the next envelope and puts it on the
// wire. Callers hold sendMu.
func (s *Session) sendFrame(link *transport.Link, frame wire.Frame) error {
	s.mu.Lock()
	s.sendSeq++
	seq := s.sendSeq
	s.mu.Unlock()

	data, err := s.codec.EncodeToBytes(wire.Envelope{Seq: seq, Frame: frame})
	if err != nil {
		return fmt.Errorf("session: encode frame: %w", err)
	}
	return link.Send(data)
}

// Flush blocks until everything queued on the data link has left the
// local buffer. One-shot senders call this before Close so the tail
// of a transfer is not cut off.
func (s *Session) Flush(ctx context.Context) error {
	link, err := s.currentLink()
	if err != nil {
		return err
	}
	return link.Flush(ctx)
}

func (s *Session) currentLink() (*transport.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected || s.link == nil {
		return nil, ErrNotConnected
	}
	return s.link, nil
}

func (s *Session) progress(name string, done, total int) {
	if s.cfg.OnTransferProgress != nil {
		s.cfg.OnTransferProgress(name, done, total)
	}
}
