package source

import (
	"context"
	"fmt"
	"io"

	"github.com/kruss/chipmunk/internal/stream"
)

// Default read-ahead sizing for file-backed sources.
const (
	DefaultReaderCapacity = 512 * 1024
	DefaultMinBufferSpace = 10 * 1024
)

// BinaryByteSource is an in-process stream.ByteSource over a raw reader.
// It owns a snapshot of the most recently reloaded window; Consume only
// marks bytes as spent, the underlying buffer advances on the next Reload.
type BinaryByteSource struct {
	reader  *MinMaxReader
	content []byte
	offset  int
}

func NewBinaryByteSource(inner io.Reader, minSize, maxSize int) *BinaryByteSource {
	return &BinaryByteSource{
		reader: NewMinMaxReader(inner, minSize, maxSize),
	}
}

func (s *BinaryByteSource) Len() int {
	return len(s.content) - s.offset
}

func (s *BinaryByteSource) CurrentSlice() []byte {
	return s.content[s.offset:]
}

func (s *BinaryByteSource) Consume(n int) {
	if s.Len() >= n {
		s.offset += n
	}
}

// Reload discards the consumed front of the buffer, refills, and snapshots
// the result. Returns (nil, nil) once the stream is drained.
func (s *BinaryByteSource) Reload(_ context.Context, _ *stream.SourceFilter) (*stream.ReloadInfo, error) {
	initial := s.Len()

	s.reader.Consume(s.offset)
	buf, err := s.reader.FillBuf()
	if err != nil {
		return nil, &stream.UnrecoverableError{Msg: fmt.Sprintf("could not fill buffer: %v", err)}
	}
	s.content = append(s.content[:0], buf...)
	s.offset = 0

	available := len(s.content)
	newlyLoaded := 0
	if available > initial {
		newlyLoaded = available - initial
	}

	if available == 0 {
		return nil, nil
	}

	return &stream.ReloadInfo{
		NewlyLoadedBytes: newlyLoaded,
		AvailableBytes:   available,
	}, nil
}
