package binary

import (
	"bytes"
)

// Writer accumulates LEB128 encoded records.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// Bool writes 1 or 0.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

// Raw writes data without a length prefix.
func (w *Writer) Raw(data []byte) {
	w.buf.Write(data)
}

// Blob writes a length-prefixed byte slice.
func (w *Writer) Blob(data []byte) {
	w.U32(uint32(len(data)))
	w.buf.Write(data)
}

// Name writes a length-prefixed string.
func (w *Writer) Name(s string) {
	w.U32(uint32(len(s)))
	w.buf.WriteString(s)
}

// U32 writes an unsigned LEB128 uint32.
func (w *Writer) U32(v uint32) {
	w.U64(uint64(v))
}

// U64 writes an unsigned LEB128 uint64.
func (w *Writer) U64(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// S32 writes a signed LEB128 int32.
func (w *Writer) S32(v int32) {
	w.S64(int64(v))
}

// S64 writes a signed LEB128 int64.
func (w *Writer) S64(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if done {
			return
		}
	}
}

// Section writes id followed by the size-prefixed contents of body.
func (w *Writer) Section(id byte, body *Writer) {
	w.Byte(id)
	w.Blob(body.Bytes())
}
