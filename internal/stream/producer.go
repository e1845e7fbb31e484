package stream

import (
	"context"
	"errors"

	"github.com/kruss/chipmunk/internal/logger"
)

// ItemKind classifies one entry of a message stream.
type ItemKind int

const (
	// ItemMessage carries a parsed message.
	ItemMessage ItemKind = iota
	// ItemSkipped marks a valid parse whose output was suppressed.
	ItemSkipped
	// ItemIncomplete marks a parse that needed more bytes; a reload follows.
	ItemIncomplete
	// ItemEmpty marks a reload that surfaced no bytes.
	ItemEmpty
	// ItemDone is the final entry of every stream.
	ItemDone
)

// StreamEntry is one indexed entry of a produced message stream. Message
// is set for ItemMessage only.
type StreamEntry struct {
	Index   int
	Kind    ItemKind
	Message Message
}

// Producer drives a Parser over a ByteSource and yields a stream of
// messages. Cancellation is observed between parser/source calls, never
// inside one.
type Producer struct {
	parser  Parser
	source  ByteSource
	filter  *SourceFilter
	index   int
	stalled int
}

func NewProducer(parser Parser, source ByteSource, filter *SourceFilter) *Producer {
	return &Producer{parser: parser, source: source, filter: filter}
}

// Stream runs the pipeline on its own goroutine. The channel is closed
// after the ItemDone entry (or on cancellation).
func (p *Producer) Stream(ctx context.Context) <-chan StreamEntry {
	out := make(chan StreamEntry)
	go func() {
		defer close(out)
		p.run(ctx, out)
	}()
	return out
}

func (p *Producer) emit(ctx context.Context, out chan<- StreamEntry, kind ItemKind, msg Message) bool {
	entry := StreamEntry{Index: p.index, Kind: kind, Message: msg}
	p.index++
	select {
	case out <- entry:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Producer) run(ctx context.Context, out chan<- StreamEntry) {
	for {
		if ctx.Err() != nil {
			return
		}
		if p.source.Len() == 0 {
			if !p.reload(ctx, out) {
				return
			}
			continue
		}

		slice := p.source.CurrentSlice()
		rest, yield, err := p.parser.Parse(slice, nil)
		switch {
		case err == nil:
			p.source.Consume(len(slice) - len(rest))
			if yield != nil {
				if !p.emit(ctx, out, ItemMessage, yield.Message) {
					return
				}
			} else if !p.emit(ctx, out, ItemSkipped, nil) {
				return
			}
		case errors.Is(err, ErrIncomplete):
			if !p.emit(ctx, out, ItemIncomplete, nil) {
				return
			}
			lenBefore := p.source.Len()
			if !p.reload(ctx, out) {
				return
			}
			// A reload that adds nothing cannot complete the frame.
			if p.source.Len() == lenBefore {
				p.stalled++
				if p.stalled >= 2 {
					p.emit(ctx, out, ItemDone, nil)
					return
				}
			} else {
				p.stalled = 0
			}
		case errors.Is(err, ErrEof):
			p.emit(ctx, out, ItemDone, nil)
			return
		default:
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				// Recoverable: skip one byte to resync on the next frame.
				logger.Debug("producer: parse error, skipping", "err", parseErr.Msg)
				p.source.Consume(1)
				if !p.emit(ctx, out, ItemSkipped, nil) {
					return
				}
			} else {
				logger.Error("producer: fatal parser error", "err", err)
				p.emit(ctx, out, ItemDone, nil)
				return
			}
		}
	}
}

// reload refills the source. Returns false when the stream is finished
// (EOF, unrecoverable error, cancellation) and the Done entry was sent.
func (p *Producer) reload(ctx context.Context, out chan<- StreamEntry) bool {
	info, err := p.source.Reload(ctx, p.filter)
	if err != nil {
		logger.Error("producer: reload failed", "err", err)
		p.emit(ctx, out, ItemDone, nil)
		return false
	}
	if info == nil {
		p.emit(ctx, out, ItemDone, nil)
		return false
	}
	if info.AvailableBytes == 0 {
		if !p.emit(ctx, out, ItemEmpty, nil) {
			return false
		}
		if info.NewlyLoadedBytes == 0 {
			p.emit(ctx, out, ItemDone, nil)
			return false
		}
	}
	return true
}
