package binary

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrOverflow is returned when a LEB128 value exceeds its target width.
	ErrOverflow = errors.New("leb128: overflow")
	// ErrTruncated is returned when the input ends inside a record.
	ErrTruncated = errors.New("unexpected end of input")
)

// Reader decodes records written by Writer from a byte slice.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader over data. The slice is not copied.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the current offset.
func (r *Reader) Position() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Byte reads a single byte.
func (r *Reader) Byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, r.wrap(ErrTruncated)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// Bool reads a byte written by Writer.Bool.
func (r *Reader) Bool() (bool, error) {
	b, err := r.Byte()
	if err != nil {
		return false, err
	}
	if b > 1 {
		return false, r.wrap(fmt.Errorf("invalid bool 0x%02x", b))
	}
	return b == 1, nil
}

// Raw reads exactly n bytes. The result is a copy.
func (r *Reader) Raw(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, r.wrap(ErrTruncated)
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// Blob reads a length-prefixed byte slice.
func (r *Reader) Blob() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	return r.Raw(int(n))
}

// Name reads a length-prefixed UTF-8 string.
func (r *Reader) Name() (string, error) {
	data, err := r.Blob()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", r.wrap(errors.New("invalid UTF-8 in name"))
	}
	return string(data), nil
}

// U32 reads an unsigned LEB128 uint32.
func (r *Reader) U32() (uint32, error) {
	v, err := r.uleb(35)
	return uint32(v), err
}

// U64 reads an unsigned LEB128 uint64.
func (r *Reader) U64() (uint64, error) {
	return r.uleb(70)
}

func (r *Reader) uleb(limit uint) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.Byte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= limit {
			return 0, r.wrap(ErrOverflow)
		}
	}
}

// S64 reads a signed LEB128 int64.
func (r *Reader) S64() (int64, error) {
	var result int64
	var shift uint
	for {
		b, err := r.Byte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= ^int64(0) << shift
			}
			return result, nil
		}
		if shift >= 70 {
			return 0, r.wrap(ErrOverflow)
		}
	}
}

// Count reads a U32 element count and rejects counts that cannot fit in the
// remaining input, assuming each element takes at least one byte.
func (r *Reader) Count() (int, error) {
	n, err := r.U32()
	if err != nil {
		return 0, err
	}
	if int(n) > r.Remaining() {
		return 0, r.wrap(fmt.Errorf("count %d exceeds remaining %d bytes", n, r.Remaining()))
	}
	return int(n), nil
}

func (r *Reader) wrap(err error) error {
	return &ParseError{Position: r.pos, Err: err}
}

// ParseError carries the offset at which decoding failed.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("%s at position %d: %v", e.Section, e.Position, e.Err)
	}
	return fmt.Sprintf("at position %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WrapError attaches the current position and a section name to err.
func (r *Reader) WrapError(section string, err error) error {
	return &ParseError{Position: r.pos, Section: section, Err: err}
}
