// Package frame implements the wire framing used by reverb: a 4-byte
// big-endian length header followed by a UTF-8 JSON body of the shape
// {"name": string, "contents": [...]}.
package frame

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedPacket is returned when a frame's body is not valid JSON or is
// missing the name/contents fields. The caller is expected to log and keep
// reading; it is never fatal to the connection.
var ErrMalformedPacket = errors.New("frame: malformed packet")

// ErrNotSerializable is returned when contents passed to Encode cannot be
// marshaled to JSON. Encode fails before any bytes are written, so a caller
// never emits a partial frame.
var ErrNotSerializable = errors.New("frame: contents not serializable")

const maxBodyBytes = 64 << 20 // defensive cap against a corrupt length header

// Frame is one decoded packet: a name and its positional JSON contents.
type Frame struct {
	Name     string
	Contents []json.RawMessage
}

type wireBody struct {
	Name     string            `json:"name"`
	Contents []json.RawMessage `json:"contents"`
}

// Encode builds a length-prefixed frame from name and contents. Each
// element of contents is marshaled independently so a single
// non-serializable argument is reported precisely.
func Encode(name string, contents ...any) ([]byte, error) {
	raw := make([]json.RawMessage, len(contents))
	for i, c := range contents {
		b, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d: %v", ErrNotSerializable, i, err)
		}
		raw[i] = b
	}

	body, err := json.Marshal(wireBody{Name: name, Contents: raw})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}

	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

// WriteTo encodes name/contents and writes the full frame to w in one call.
func WriteTo(w io.Writer, name string, contents ...any) error {
	buf, err := Encode(name, contents...)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadFrom reads exactly one frame from r: the 4-byte length header then
// that many body bytes. A header read error or EOF (including a partial
// body) is returned verbatim so the caller closes the connection. A
// malformed body returns ErrMalformedPacket instead, so the caller can keep
// reading the next frame.
func ReadFrom(r io.Reader) (*Frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(header[:])
	if n == 0 {
		return nil, fmt.Errorf("%w: zero-length body", ErrMalformedPacket)
	}
	if n > maxBodyBytes {
		return nil, fmt.Errorf("frame: length header too large (%d bytes)", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	var w wireBody
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if w.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrMalformedPacket)
	}
	if w.Contents == nil {
		return nil, fmt.Errorf("%w: missing contents", ErrMalformedPacket)
	}

	return &Frame{Name: w.Name, Contents: w.Contents}, nil
}

// Unmarshal decodes the i'th content element into v.
func (f *Frame) Unmarshal(i int, v any) error {
	if i < 0 || i >= len(f.Contents) {
		return fmt.Errorf("frame: content index %d out of range (have %d)", i, len(f.Contents))
	}
	return json.Unmarshal(f.Contents[i], v)
}
