// Package source provides in-process byte sources for the streaming
// pipeline: a min/max read-ahead buffer and a binary byte source built on
// top of it.
package source

import (
	"errors"
	"io"
)

// MinMaxReader is a read-ahead buffer over an arbitrary reader. FillBuf
// tops the buffer up from the underlying reader until it holds at least
// minSize bytes, the reader signals end of stream, or the buffer reaches
// maxSize. The buffer is contiguous at read time.
type MinMaxReader struct {
	inner   io.Reader
	buf     []byte
	minSize int
	maxSize int
	eof     bool
}

// NewMinMaxReader panics unless 0 <= minSize <= maxSize.
func NewMinMaxReader(inner io.Reader, minSize, maxSize int) *MinMaxReader {
	if minSize < 0 || minSize > maxSize {
		panic("source: minSize must be less than or equal to maxSize")
	}
	return &MinMaxReader{
		inner:   inner,
		buf:     make([]byte, 0, maxSize),
		minSize: minSize,
		maxSize: maxSize,
	}
}

// FillBuf returns the buffered bytes after topping up. The returned slice
// is valid until the next Consume, Read, or FillBuf call.
func (r *MinMaxReader) FillBuf() ([]byte, error) {
	for len(r.buf) < r.minSize && len(r.buf) < r.maxSize {
		tmp := make([]byte, r.maxSize-len(r.buf))
		n, err := r.inner.Read(tmp)
		if n > 0 {
			r.buf = append(r.buf, tmp[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.eof = true
				break
			}
			return nil, err
		}
		if n == 0 {
			r.eof = true
			break
		}
	}
	return r.buf, nil
}

// Consume discards the front amt bytes of the buffer.
func (r *MinMaxReader) Consume(amt int) {
	if amt > len(r.buf) {
		amt = len(r.buf)
	}
	r.buf = append(r.buf[:0], r.buf[amt:]...)
}

// Buffered returns the current buffer length without filling.
func (r *MinMaxReader) Buffered() int { return len(r.buf) }

// Read implements io.Reader over the buffered stream.
func (r *MinMaxReader) Read(p []byte) (int, error) {
	buf, err := r.FillBuf()
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, buf)
	r.Consume(n)
	return n, nil
}
