// Package serialize implements the varint and length-prefixed blob framing
// shared by every on-chain block and resource-encryptor header. There is no
// third-party varint/length-prefix library anywhere in the retrieval pack,
// so this one leaf depends only on encoding/binary's LEB128 varint helpers,
// which already implement byte-for-byte what the wire format calls for.
package serialize

import (
	"encoding/binary"
	"fmt"
)

// Writer accumulates a block/header's wire bytes.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) PutVarint(v uint64) *Writer {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
	return w
}

func (w *Writer) PutFixed(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// PutBlob writes a varint length prefix followed by b.
func (w *Writer) PutBlob(b []byte) *Writer {
	w.PutVarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) PutByte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

// Reader consumes a block/header's wire bytes in order, mirroring the
// preamble layout of internal/blocks.Block.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) GetVarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("serialize: truncated varint")
	}
	r.pos += n
	return v, nil
}

func (r *Reader) GetFixed(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, fmt.Errorf("serialize: truncated fixed field (want %d, have %d)", n, r.Remaining())
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *Reader) GetByte() (byte, error) {
	b, err := r.GetFixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// GetBlob reads a varint length prefix followed by that many bytes.
func (r *Reader) GetBlob() ([]byte, error) {
	n, err := r.GetVarint()
	if err != nil {
		return nil, fmt.Errorf("serialize: blob length: %w", err)
	}
	return r.GetFixed(int(n))
}

// GetRest returns every remaining byte and consumes them, leaving the
// reader empty; used for unbounded trailing blobs (e.g. sealedPrivateKeys).
func (r *Reader) GetRest() []byte {
	out := r.buf[r.pos:]
	r.pos = len(r.buf)
	return out
}
