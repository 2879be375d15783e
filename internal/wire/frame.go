// Package wire implements the TLV protocol a sync client and server speak
// over the transport byte stream: tagged, length-prefixed frames carrying
// history batches, phase markers, and server errors.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Tag identifies the kind of a frame.
type Tag uint8

const (
	// TagBatch carries a count-prefixed sequence of history entries.
	TagBatch Tag = 1

	// TagEnd is an empty frame marking the end of a logical phase: the end
	// of the client's upload, or the end of the server's merged result. It
	// exists so either side can detect "no more frames" on a pipe that stays
	// open across phases.
	TagEnd Tag = 2

	// TagError carries a UTF-8 message describing a server-side failure.
	TagError Tag = 3
)

// MaxPayload bounds a single frame's payload. A corrupted or hostile length
// field must not make the reader allocate or block without bound.
const MaxPayload = 64 << 20

// DefaultChunkBytes is the soft payload target used when a logical batch is
// split across several BATCH frames (see SplitBatch).
const DefaultChunkBytes = 1 << 20

// ErrMalformedFrame reports wire-level corruption: a stream that closes
// mid-record, a declared length beyond MaxPayload, an unknown tag, or an END
// frame carrying a payload. Always wrapped with detail; match with errors.Is.
var ErrMalformedFrame = errors.New("malformed frame")

// ErrTransportClosed reports that the peer ended the stream cleanly but
// before the protocol completed. Returned by the orchestrators, not by
// ReadFrame itself (which signals a clean boundary EOF as io.EOF).
var ErrTransportClosed = errors.New("transport closed before protocol completion")

// Frame is one TLV record: a 1-byte tag, a 4-byte big-endian payload length,
// and the payload.
type Frame struct {
	Tag     Tag
	Payload []byte
}

// WriteFrame encodes exactly one frame onto w. Encoding is a pure function
// of the frame — no state is kept between calls.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxPayload {
		return fmt.Errorf("%w: payload %d bytes exceeds max %d", ErrMalformedFrame, len(f.Payload), MaxPayload)
	}

	var hdr [5]byte
	hdr[0] = byte(f.Tag)
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(f.Payload)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame decodes exactly one frame from r, leaving the stream positioned
// at the next record boundary. A clean end of stream before the first byte
// returns io.EOF; anything else that cuts a record short, an unknown tag
// (protocol drift is rejected, never skipped), an over-long declared length,
// or a non-empty END frame returns ErrMalformedFrame.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [5]byte

	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("read frame tag: %w", err)
	}

	tag := Tag(hdr[0])
	switch tag {
	case TagBatch, TagEnd, TagError:
	default:
		return Frame{}, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformedFrame, hdr[0])
	}

	if _, err := io.ReadFull(r, hdr[1:]); err != nil {
		return Frame{}, fmt.Errorf("%w: stream closed inside header: %v", ErrMalformedFrame, err)
	}

	length := binary.BigEndian.Uint32(hdr[1:])
	if length > MaxPayload {
		return Frame{}, fmt.Errorf("%w: declared length %d exceeds max %d", ErrMalformedFrame, length, MaxPayload)
	}
	if tag == TagEnd && length != 0 {
		return Frame{}, fmt.Errorf("%w: END frame with %d-byte payload", ErrMalformedFrame, length)
	}

	var payload []byte
	if length > 0 {
		payload = make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("%w: stream closed inside payload: %v", ErrMalformedFrame, err)
		}
	}
	return Frame{Tag: tag, Payload: payload}, nil
}
