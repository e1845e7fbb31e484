// Package proxy adapts plugin guests behind the host pipeline contracts:
// a guest parser becomes a stream.Parser, a guest byte source becomes a
// stream.ByteSource. Each adapter owns its proxy exclusively and keeps
// cumulative stats.
package proxy

import (
	"context"
	"fmt"

	"github.com/kruss/chipmunk/internal/logger"
	"github.com/kruss/chipmunk/internal/plugin/host"
	"github.com/kruss/chipmunk/internal/plugin/rpc"
	"github.com/kruss/chipmunk/internal/stream"
)

// ParserStats counts the adapter's traffic with its guest.
type ParserStats struct {
	CallsTotal       uint64
	CallsPlugin      uint64
	PluginResults    uint64
	MessagesParsed   uint64
	MessagesFiltered uint64
	ParseIncomplete  uint64
	ParseEof         uint64
	ParseError       uint64
}

func (s ParserStats) String() string {
	return fmt.Sprintf("c-fn %d, c-plg %d, p-res %d, m-ok %d, m-flt %d, p-inc %d, p-eof %d, p-err %d",
		s.CallsTotal, s.CallsPlugin, s.PluginResults,
		s.MessagesParsed, s.MessagesFiltered,
		s.ParseIncomplete, s.ParseEof, s.ParseError)
}

// ParserProxy adapts a guest parser behind the stream.Parser contract. A
// single guest Parse round trip may yield a whole batch of results; the
// adapter buffers them and replays one per call, so N results cost
// exactly one guest call.
type ParserProxy struct {
	proxy   host.Proxy
	stats   ParserStats
	results []rpc.ParserResult
}

// NewParserProxy issues the Setup handshake. A reply other than SetupDone
// is fatal for the proxy.
func NewParserProxy(ctx context.Context, p host.Proxy, withStorageHeader bool) (*ParserProxy, error) {
	logger.Info("new parser proxy", "proxy", p.ID())

	request := rpc.EncodeParserRequest(rpc.ParserSetup{WithStorageHeader: withStorageHeader})
	output, err := p.Call(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("parser setup: %w", err)
	}
	reply, err := rpc.DecodeParserResponse(output)
	if err != nil {
		return nil, fmt.Errorf("parser setup: %v: %w", err, host.ErrInvalid)
	}
	if _, ok := reply.Plugin.(rpc.ParserSetupDone); !ok {
		return nil, fmt.Errorf("parser setup: unexpected reply: %w", host.ErrInvalid)
	}
	return &ParserProxy{proxy: p}, nil
}

// Stats returns the cumulative adapter stats.
func (p *ParserProxy) Stats() ParserStats { return p.stats }

// Close logs the final stats and tears down the guest sandbox.
func (p *ParserProxy) Close(ctx context.Context) error {
	logger.Info("parser proxy stats", "proxy", p.proxy.ID(), "stats", p.stats.String())
	return p.proxy.Close(ctx)
}

// Parse implements stream.Parser. Results buffered from the last guest
// call are replayed first; only an empty queue triggers another round
// trip. Proxy calls are uninterruptible: cancellation happens at the
// stream layer, between calls.
func (p *ParserProxy) Parse(input []byte, _ *uint64) ([]byte, *stream.Yield, error) {
	p.stats.CallsTotal++
	if rest, yield, err, ok := p.nextResult(input); ok {
		return rest, yield, err
	}

	p.stats.CallsPlugin++
	request := rpc.EncodeParserRequest(rpc.ParserParse{Bytes: input})
	output, err := p.proxy.Call(context.Background(), request)
	if err != nil {
		return nil, nil, fmt.Errorf("parse call: %w", err)
	}
	reply, err := rpc.DecodeParserResponse(output)
	if err != nil {
		return nil, nil, fmt.Errorf("parse reply: %v: %w", err, host.ErrInvalid)
	}
	results, ok := reply.Plugin.(rpc.ParserResults)
	if !ok {
		return nil, nil, fmt.Errorf("parse reply: unexpected response: %w", host.ErrInvalid)
	}
	if len(results.Results) == 0 {
		return nil, nil, fmt.Errorf("parse reply: empty result batch: %w", host.ErrInvalid)
	}
	p.stats.PluginResults += uint64(len(results.Results))
	p.results = results.Results

	rest, yield, err, _ := p.nextResult(input)
	return rest, yield, err
}

// nextResult pops the head of the result queue and translates it into the
// Parser contract. Only the last Ok of a batch observes the aggregate
// progress: earlier Oks return the full input so the caller re-enters to
// drain the queue. A trailing terminal does not defer that progress, since
// its frames were already accounted for. A terminal result empties the queue.
func (p *ParserProxy) nextResult(input []byte) ([]byte, *stream.Yield, error, bool) {
	if len(p.results) == 0 {
		return nil, nil, nil, false
	}
	result := p.results[0]
	p.results = p.results[1:]

	switch r := result.(type) {
	case rpc.ParseOk:
		rest := input
		if lastOk(p.results) {
			if r.BytesRemaining > uint64(len(input)) {
				p.results = nil
				return nil, nil, fmt.Errorf("bytes_remaining %d exceeds input %d: %w",
					r.BytesRemaining, len(input), host.ErrInvalid), true
			}
			rest = input[uint64(len(input))-r.BytesRemaining:]
		}
		if r.Message != nil {
			p.stats.MessagesParsed++
			return rest, &stream.Yield{Message: stream.TextMessage(*r.Message)}, nil, true
		}
		p.stats.MessagesFiltered++
		return rest, nil, nil, true
	case rpc.ParseIncomplete:
		p.stats.ParseIncomplete++
		p.results = nil
		return nil, nil, stream.ErrIncomplete, true
	case rpc.ParseEof:
		p.stats.ParseEof++
		p.results = nil
		return nil, nil, stream.ErrEof, true
	case rpc.ParseErr:
		p.stats.ParseError++
		p.results = nil
		return nil, nil, &stream.ParseError{Msg: r.Msg}, true
	}
	p.results = nil
	return nil, nil, fmt.Errorf("unknown parser result: %w", host.ErrInvalid), true
}

// lastOk reports whether no further Ok result is queued.
func lastOk(queue []rpc.ParserResult) bool {
	for _, r := range queue {
		if _, ok := r.(rpc.ParseOk); ok {
			return false
		}
	}
	return true
}
