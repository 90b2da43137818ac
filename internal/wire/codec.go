package wire

import (
	"bytes"
	"encoding/gob"
	"io"
)

func init() {
	gob.Register(&Text{})
	gob.Register(&FileStart{})
	gob.Register(&File{})
	gob.Register(&FileChunk{})
	gob.Register(&FileComplete{})
}

type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) Encode(w io.Writer, env Envelope) error {
	return gob.NewEncoder(w).Encode(&env)
}

func (c *Codec) Decode(r io.Reader) (Envelope, error) {
	var env Envelope
	if err := gob.NewDecoder(r).Decode(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (c *Codec) EncodeToBytes(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Codec) DecodeFromBytes(data []byte) (Envelope, error) {
	return c.Decode(bytes.NewReader(data))
}
