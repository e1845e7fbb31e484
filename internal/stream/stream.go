// Package stream defines the contracts of the host's streaming pipeline:
// lazy parsers over byte buffers, reloadable byte sources, and the
// producer that drives one against the other.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Message is one parsed log entry.
type Message interface {
	fmt.Stringer
	// WriteTo writes the raw message bytes and returns the count written.
	WriteTo(w io.Writer) (int, error)
}

// TextMessage is a Message backed by a plain string.
type TextMessage string

func (m TextMessage) String() string { return string(m) }

func (m TextMessage) WriteTo(w io.Writer) (int, error) {
	return w.Write([]byte(m))
}

// Parse errors. ErrIncomplete and ErrEof are sentinels; a ParseError is
// recoverable and carries the parser's message.
var (
	ErrIncomplete = errors.New("parse incomplete")
	ErrEof        = errors.New("parse eof")
)

// ParseError is a recoverable parse failure for one region of input.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }

// Yield is the output of one successful parse step.
type Yield struct {
	Message Message
}

// Parser consumes a byte buffer one message at a time.
//
// Parse returns the unconsumed rest of input and, on success, a yield. A
// nil yield with a nil error is a filtered message: the parse was valid
// and input advanced, but the output is suppressed. timestamp, when
// non-nil, anchors messages without their own timestamps.
type Parser interface {
	Parse(input []byte, timestamp *uint64) (rest []byte, yield *Yield, err error)
}

// ReloadInfo reports the accounting of one successful reload.
type ReloadInfo struct {
	NewlyLoadedBytes int
	AvailableBytes   int
	SkippedBytes     int
}

// SourceFilter narrows what a reload should surface. Currently a
// host-side concept only; proxied sources ignore it.
type SourceFilter struct {
	Pattern string
}

// UnrecoverableError is a fatal byte-source failure.
type UnrecoverableError struct {
	Msg string
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("unrecoverable source error: %s", e.Msg)
}

// ByteSource hands out reloadable windows over a byte stream.
//
// CurrentSlice and Len are O(1) accessors over the most recently reloaded
// window. Reload returns (nil, nil) at end of stream.
type ByteSource interface {
	Len() int
	CurrentSlice() []byte
	Consume(n int)
	Reload(ctx context.Context, filter *SourceFilter) (*ReloadInfo, error)
}
