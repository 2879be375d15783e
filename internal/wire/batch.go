package wire

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/roach88/shoal/internal/history"
)

// Batch payload layout, all integers big-endian:
//
//	u32 count
//	count × entry:
//	  u32 cmd length ‖ cmd bytes
//	  i64 when
//	  u8  extra presence (0 absent, 1 present)
//	  if present: u32 extra length ‖ extra bytes
//
// The layout is self-describing: a decoder needs no schema beyond this file.
// Strings must be valid UTF-8 on decode so a corrupted stream cannot smuggle
// arbitrary bytes into a history file.

const (
	extraAbsent  = 0
	extraPresent = 1
)

// EncodeBatch serializes entries into a BATCH frame payload.
func EncodeBatch(entries []history.Entry) []byte {
	size := 4
	for _, e := range entries {
		size += 4 + len(e.Cmd) + 8 + 1
		if e.Extra.Valid {
			size += 4 + len(e.Extra.String)
		}
	}

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Cmd)))
		buf = append(buf, e.Cmd...)
		buf = binary.BigEndian.AppendUint64(buf, uint64(e.When))
		if e.Extra.Valid {
			buf = append(buf, extraPresent)
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Extra.String)))
			buf = append(buf, e.Extra.String...)
		} else {
			buf = append(buf, extraAbsent)
		}
	}
	return buf
}

// DecodeBatch deserializes a BATCH frame payload, preserving entry order.
// Any shape violation — truncation, trailing bytes after the declared count,
// an unrecognized presence flag, invalid UTF-8 — fails with
// history.ErrInvalidEntry wrapped with detail. An empty batch decodes to an
// empty slice, not nil.
func DecodeBatch(payload []byte) ([]history.Entry, error) {
	d := batchDecoder{buf: payload}

	count, err := d.uint32("entry count")
	if err != nil {
		return nil, err
	}

	entries := []history.Entry{}
	for i := uint32(0); i < count; i++ {
		cmd, err := d.str("cmd")
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		when, err := d.int64("when")
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		flag, err := d.byte("extra flag")
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		e := history.Entry{Cmd: cmd, When: when}
		switch flag {
		case extraAbsent:
		case extraPresent:
			extra, err := d.str("extra")
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			e.Extra.String = extra
			e.Extra.Valid = true
		default:
			return nil, fmt.Errorf("entry %d: extra flag 0x%02x: %w", i, flag, history.ErrInvalidEntry)
		}
		entries = append(entries, e)
	}

	if len(d.buf) != d.off {
		return nil, fmt.Errorf("%d trailing bytes after %d entries: %w", len(d.buf)-d.off, count, history.ErrInvalidEntry)
	}
	return entries, nil
}

// SplitBatch partitions entries so that each chunk's encoded payload stays
// near maxBytes; an entry larger than maxBytes by itself still gets its own
// chunk rather than failing. Zero entries yields zero chunks — the END frame
// alone then carries the "empty batch" meaning on the wire.
func SplitBatch(entries []history.Entry, maxBytes int) [][]history.Entry {
	var chunks [][]history.Entry
	start := 0
	size := 4
	for i, e := range entries {
		esz := 4 + len(e.Cmd) + 8 + 1
		if e.Extra.Valid {
			esz += 4 + len(e.Extra.String)
		}
		if i > start && size+esz > maxBytes {
			chunks = append(chunks, entries[start:i])
			start = i
			size = 4
		}
		size += esz
	}
	if start < len(entries) {
		chunks = append(chunks, entries[start:])
	}
	return chunks
}

type batchDecoder struct {
	buf []byte
	off int
}

func (d *batchDecoder) take(n int, field string) ([]byte, error) {
	if d.off+n > len(d.buf) {
		return nil, fmt.Errorf("truncated %s: %w", field, history.ErrInvalidEntry)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *batchDecoder) byte(field string) (byte, error) {
	b, err := d.take(1, field)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *batchDecoder) uint32(field string) (uint32, error) {
	b, err := d.take(4, field)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *batchDecoder) int64(field string) (int64, error) {
	b, err := d.take(8, field)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (d *batchDecoder) str(field string) (string, error) {
	n, err := d.uint32(field + " length")
	if err != nil {
		return "", err
	}
	b, err := d.take(int(n), field)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%s is not valid UTF-8: %w", field, history.ErrInvalidEntry)
	}
	return string(b), nil
}
