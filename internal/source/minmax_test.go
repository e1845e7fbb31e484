package source

import (
	"bytes"
	"context"
	"io"
	"testing"
)

// chunkReader yields at most chunk bytes per Read call.
type chunkReader struct {
	data  []byte
	chunk int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.chunk
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestMinMaxReaderReadAll(t *testing.T) {
	data := []byte("Hello, this is a test.")
	r := NewMinMaxReader(bytes.NewReader(data), 10, 20)

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadAll = %q, want %q", got, data)
	}
}

func TestMinMaxReaderFillInvariants(t *testing.T) {
	tests := []struct {
		name     string
		data     int // total bytes available
		chunk    int
		min, max int
	}{
		{"plenty", 100, 3, 10, 20},
		{"short stream", 4, 2, 10, 20},
		{"min equals max", 100, 7, 16, 16},
		{"single byte chunks", 50, 1, 8, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewMinMaxReader(&chunkReader{data: make([]byte, tt.data), chunk: tt.chunk}, tt.min, tt.max)
			total := 0
			for {
				buf, err := r.FillBuf()
				if err != nil {
					t.Fatalf("FillBuf: %v", err)
				}
				if len(buf) > tt.max {
					t.Fatalf("buffered %d bytes, max is %d", len(buf), tt.max)
				}
				if len(buf) < tt.min && !r.eof && len(buf) != tt.max {
					t.Fatalf("FillBuf stopped at %d bytes without EOF (min %d, max %d)", len(buf), tt.min, tt.max)
				}
				if len(buf) == 0 {
					break
				}
				r.Consume(len(buf))
				total += len(buf)
			}
			if total != tt.data {
				t.Errorf("consumed %d bytes total, want %d", total, tt.data)
			}
		})
	}
}

func TestMinMaxReaderAssertsSizes(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewMinMaxReader(min > max) did not panic")
		}
	}()
	NewMinMaxReader(bytes.NewReader(nil), 20, 10)
}

func TestMinMaxReaderConsumePastEnd(t *testing.T) {
	r := NewMinMaxReader(bytes.NewReader([]byte("abc")), 2, 8)
	if _, err := r.FillBuf(); err != nil {
		t.Fatalf("FillBuf: %v", err)
	}
	r.Consume(100)
	if r.Buffered() != 0 {
		t.Errorf("Buffered() = %d after over-consume, want 0", r.Buffered())
	}
}

func TestBinaryByteSourceRoundTrip(t *testing.T) {
	// 100 frames of [len=3, 0x0A, 0x0B, 0x0C].
	frame := []byte{3, 0x0A, 0x0B, 0x0C}
	var data []byte
	for i := 0; i < 100; i++ {
		data = append(data, frame...)
	}

	src := NewBinaryByteSource(bytes.NewReader(data), 5, 10)
	ctx := context.Background()

	consumed := 0
	eofSeen := 0
	for {
		info, err := src.Reload(ctx, nil)
		if err != nil {
			t.Fatalf("Reload: %v", err)
		}
		if info == nil {
			eofSeen++
			break
		}
		if info.AvailableBytes < 4 {
			t.Fatalf("AvailableBytes = %d, want >= 4", info.AvailableBytes)
		}
		if got := src.CurrentSlice(); !bytes.Equal(got[:4], frame) {
			t.Fatalf("CurrentSlice prefix = % x, want % x", got[:4], frame)
		}
		src.Consume(4)
		consumed += 4
	}
	if consumed != 400 {
		t.Errorf("consumed = %d, want 400", consumed)
	}
	if eofSeen != 1 {
		t.Errorf("eof count = %d, want 1", eofSeen)
	}
}

func TestBinaryByteSourceAccounting(t *testing.T) {
	src := NewBinaryByteSource(bytes.NewReader([]byte("abcdefgh")), 4, 4)
	ctx := context.Background()

	info, err := src.Reload(ctx, nil)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if info.NewlyLoadedBytes != 4 || info.AvailableBytes != 4 {
		t.Fatalf("first reload = %+v, want 4 newly, 4 available", info)
	}
	if src.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", src.Len())
	}

	src.Consume(2)
	if src.Len() != 2 || !bytes.Equal(src.CurrentSlice(), []byte("cd")) {
		t.Fatalf("after Consume(2): len %d slice %q", src.Len(), src.CurrentSlice())
	}

	info, err = src.Reload(ctx, nil)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if info.AvailableBytes != 4 || info.NewlyLoadedBytes != 2 {
		t.Errorf("second reload = %+v, want 2 newly, 4 available", info)
	}
	if !bytes.Equal(src.CurrentSlice(), []byte("cdef")) {
		t.Errorf("CurrentSlice = %q, want %q", src.CurrentSlice(), "cdef")
	}
}
