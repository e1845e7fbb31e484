package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kruss/chipmunk/internal/plugin/host"
	"github.com/kruss/chipmunk/internal/plugin/rpc"
	"github.com/kruss/chipmunk/internal/stream"
)

func strptr(s string) *string { return &s }

// fakeParserGuest is an in-process guest speaking the parser protocol. It
// returns one scripted batch per Parse request.
type fakeParserGuest struct {
	id         host.ProxyID
	batches    [][]rpc.ParserResult
	setupCalls int
	parseCalls int
	lastInput  []byte
	misbehave  string // "empty-batch" | "wrong-reply" | "setup-fails"
}

func (g *fakeParserGuest) ID() host.ProxyID { return g.id }

func (g *fakeParserGuest) Close(context.Context) error { return nil }

func (g *fakeParserGuest) Call(_ context.Context, input []byte) ([]byte, error) {
	call, err := rpc.DecodeParserRequest(input)
	if err != nil {
		// A real guest would trap on an undecodable request; the transport
		// surfaces that as ErrInvalid.
		return nil, fmt.Errorf("guest trapped: %v: %w", err, host.ErrInvalid)
	}
	switch req := call.Plugin.(type) {
	case rpc.ParserSetup:
		g.setupCalls++
		if g.misbehave == "setup-fails" {
			return rpc.EncodeRuntimeResponse(rpc.RuntimeResponse{Kind: rpc.RuntimeRespError}), nil
		}
		return rpc.EncodeParserResponse(rpc.ParserSetupDone{}), nil
	case rpc.ParserParse:
		g.parseCalls++
		g.lastInput = req.Bytes
		switch g.misbehave {
		case "empty-batch":
			return rpc.EncodeParserResponse(rpc.ParserResults{}), nil
		case "wrong-reply":
			return rpc.EncodeParserResponse(rpc.ParserSetupDone{}), nil
		}
		batch := g.batches[0]
		g.batches = g.batches[1:]
		return rpc.EncodeParserResponse(rpc.ParserResults{Results: batch}), nil
	}
	return rpc.EncodeRuntimeResponse(rpc.RuntimeResponse{Kind: rpc.RuntimeRespError}), nil
}

func newParser(t *testing.T, guest *fakeParserGuest) *ParserProxy {
	t.Helper()
	p, err := NewParserProxy(context.Background(), guest, true)
	if err != nil {
		t.Fatalf("NewParserProxy: %v", err)
	}
	if guest.setupCalls != 1 {
		t.Fatalf("setup calls = %d, want 1", guest.setupCalls)
	}
	return p
}

func TestParserSetupFatalOnBadReply(t *testing.T) {
	guest := &fakeParserGuest{misbehave: "setup-fails"}
	_, err := NewParserProxy(context.Background(), guest, false)
	if !errors.Is(err, host.ErrInvalid) {
		t.Fatalf("NewParserProxy = %v, want ErrInvalid", err)
	}
}

func TestParserBatchLazinessAndRest(t *testing.T) {
	input := []byte("0123456789AB") // 12 bytes
	guest := &fakeParserGuest{batches: [][]rpc.ParserResult{
		{
			rpc.ParseOk{BytesRemaining: 8, Message: strptr("first")},
			rpc.ParseOk{BytesRemaining: 3, Message: nil},
			rpc.ParseOk{BytesRemaining: 0, Message: strptr("last")},
		},
		{
			rpc.ParseOk{BytesRemaining: 0, Message: strptr("next")},
		},
	}}
	p := newParser(t, guest)

	// First call reaches the guest and yields the first batched result.
	rest, yield, err := p.Parse(input, nil)
	if err != nil {
		t.Fatalf("Parse #1: %v", err)
	}
	if !bytes.Equal(rest, input) {
		t.Errorf("Parse #1 rest = %q, want full input", rest)
	}
	if yield == nil || yield.Message.String() != "first" {
		t.Errorf("Parse #1 yield = %+v, want message %q", yield, "first")
	}
	if !bytes.Equal(guest.lastInput, input) {
		t.Errorf("guest saw input %q, want %q", guest.lastInput, input)
	}

	// Second call drains the queue without another guest call: a filtered
	// message.
	rest, yield, err = p.Parse(input, nil)
	if err != nil {
		t.Fatalf("Parse #2: %v", err)
	}
	if yield != nil {
		t.Errorf("Parse #2 yield = %+v, want filtered (nil)", yield)
	}
	if !bytes.Equal(rest, input) {
		t.Errorf("Parse #2 rest = %q, want full input", rest)
	}

	// Final item of the batch observes the aggregate progress.
	rest, yield, err = p.Parse(input, nil)
	if err != nil {
		t.Fatalf("Parse #3: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("Parse #3 rest = %q, want empty", rest)
	}
	if yield == nil || yield.Message.String() != "last" {
		t.Errorf("Parse #3 yield = %+v, want message %q", yield, "last")
	}
	if guest.parseCalls != 1 {
		t.Fatalf("guest parse calls = %d after 3-result batch, want 1", guest.parseCalls)
	}

	// An empty queue triggers the next round trip.
	if _, _, err := p.Parse(input, nil); err != nil {
		t.Fatalf("Parse #4: %v", err)
	}
	if guest.parseCalls != 2 {
		t.Errorf("guest parse calls = %d, want 2", guest.parseCalls)
	}

	stats := p.Stats()
	if stats.CallsTotal != 4 || stats.CallsPlugin != 2 || stats.PluginResults != 4 {
		t.Errorf("stats = %+v, want 4 calls, 2 plugin calls, 4 results", stats)
	}
	if stats.MessagesParsed != 3 || stats.MessagesFiltered != 1 {
		t.Errorf("stats = %+v, want 3 parsed, 1 filtered", stats)
	}
}

func TestParserBatchAccounting(t *testing.T) {
	// bytes_remaining strictly non-increasing across an Ok run; the rest
	// of the final item matches input[len(input)-b:].
	input := []byte("abcdefghij")
	remaining := []uint64{7, 4, 4, 2}
	var batch []rpc.ParserResult
	for _, b := range remaining {
		batch = append(batch, rpc.ParseOk{BytesRemaining: b, Message: strptr("m")})
	}
	guest := &fakeParserGuest{batches: [][]rpc.ParserResult{batch}}
	p := newParser(t, guest)

	for i := range remaining {
		rest, _, err := p.Parse(input, nil)
		if err != nil {
			t.Fatalf("Parse #%d: %v", i, err)
		}
		if i == len(remaining)-1 {
			want := input[len(input)-int(remaining[i]):]
			if !bytes.Equal(rest, want) {
				t.Errorf("final rest = %q, want %q", rest, want)
			}
		} else if !bytes.Equal(rest, input) {
			t.Errorf("rest #%d = %q, want full input", i, rest)
		}
	}
	if guest.parseCalls != 1 {
		t.Errorf("guest parse calls = %d, want 1", guest.parseCalls)
	}
}

func TestParserIncompleteThenRetry(t *testing.T) {
	full := []byte("0123456789AB")
	guest := &fakeParserGuest{batches: [][]rpc.ParserResult{
		{rpc.ParseIncomplete{}},
		{rpc.ParseOk{BytesRemaining: 0, Message: strptr("whole frame")}},
	}}
	p := newParser(t, guest)

	_, _, err := p.Parse(full[:10], nil)
	if !errors.Is(err, stream.ErrIncomplete) {
		t.Fatalf("Parse(prefix) = %v, want ErrIncomplete", err)
	}

	rest, yield, err := p.Parse(full, nil)
	if err != nil {
		t.Fatalf("Parse(full): %v", err)
	}
	if len(rest) != 0 || yield == nil || yield.Message.String() != "whole frame" {
		t.Errorf("Parse(full) = (%q, %+v), want empty rest and message", rest, yield)
	}
	if guest.parseCalls != 2 {
		t.Errorf("guest parse calls = %d, want 2", guest.parseCalls)
	}
}

func TestParserTerminalResults(t *testing.T) {
	input := []byte("abcd")

	t.Run("eof", func(t *testing.T) {
		guest := &fakeParserGuest{batches: [][]rpc.ParserResult{{rpc.ParseEof{}}}}
		p := newParser(t, guest)
		_, _, err := p.Parse(input, nil)
		if !errors.Is(err, stream.ErrEof) {
			t.Fatalf("Parse = %v, want ErrEof", err)
		}
	})

	t.Run("error after ok", func(t *testing.T) {
		guest := &fakeParserGuest{batches: [][]rpc.ParserResult{
			{
				rpc.ParseOk{BytesRemaining: 2, Message: strptr("ok")},
				rpc.ParseErr{Msg: "bad frame"},
			},
			{rpc.ParseEof{}},
		}}
		p := newParser(t, guest)

		rest, yield, err := p.Parse(input, nil)
		if err != nil || yield == nil {
			t.Fatalf("Parse #1 = (%q, %+v, %v), want message", rest, yield, err)
		}
		// Last Ok of the batch: progress is observed even though a
		// terminal follows.
		if !bytes.Equal(rest, input[2:]) {
			t.Errorf("rest = %q, want %q", rest, input[2:])
		}

		var parseErr *stream.ParseError
		_, _, err = p.Parse(input, nil)
		if !errors.As(err, &parseErr) || parseErr.Msg != "bad frame" {
			t.Fatalf("Parse #2 = %v, want ParseError(bad frame)", err)
		}

		// The terminal emptied the queue; the next call reaches the guest.
		if _, _, err := p.Parse(input, nil); !errors.Is(err, stream.ErrEof) {
			t.Fatalf("Parse #3 = %v, want ErrEof", err)
		}
		if guest.parseCalls != 2 {
			t.Errorf("guest parse calls = %d, want 2", guest.parseCalls)
		}
	})
}

func TestParserProtocolViolations(t *testing.T) {
	input := []byte("abcd")

	t.Run("empty batch", func(t *testing.T) {
		p := newParser(t, &fakeParserGuest{misbehave: "empty-batch"})
		_, _, err := p.Parse(input, nil)
		if !errors.Is(err, host.ErrInvalid) {
			t.Fatalf("Parse = %v, want ErrInvalid", err)
		}
	})

	t.Run("wrong reply variant", func(t *testing.T) {
		p := newParser(t, &fakeParserGuest{misbehave: "wrong-reply"})
		_, _, err := p.Parse(input, nil)
		if !errors.Is(err, host.ErrInvalid) {
			t.Fatalf("Parse = %v, want ErrInvalid", err)
		}
	})

	t.Run("bytes_remaining exceeds input", func(t *testing.T) {
		guest := &fakeParserGuest{batches: [][]rpc.ParserResult{
			{rpc.ParseOk{BytesRemaining: 99, Message: strptr("x")}},
		}}
		p := newParser(t, guest)
		_, _, err := p.Parse(input, nil)
		if !errors.Is(err, host.ErrInvalid) {
			t.Fatalf("Parse = %v, want ErrInvalid", err)
		}
	})
}
