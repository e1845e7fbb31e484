package proxy

import (
	"context"
	"fmt"

	"github.com/kruss/chipmunk/internal/logger"
	"github.com/kruss/chipmunk/internal/plugin/host"
	"github.com/kruss/chipmunk/internal/plugin/rpc"
	"github.com/kruss/chipmunk/internal/stream"
)

// SourceStats counts the adapter's traffic with its guest.
type SourceStats struct {
	CallsConsume uint64
	CallsReload  uint64
	ReloadOk     uint64
	ReloadEof    uint64
	ReloadError  uint64
}

func (s SourceStats) String() string {
	return fmt.Sprintf("c-cns %d, c-rld %d, r-ok %d, r-eof %d, r-err %d",
		s.CallsConsume, s.CallsReload, s.ReloadOk, s.ReloadEof, s.ReloadError)
}

// ByteSourceProxy adapts a guest byte source behind the stream.ByteSource
// contract. It owns the most recently reloaded slice; CurrentSlice and
// Len never call the guest.
type ByteSourceProxy struct {
	proxy   host.Proxy
	stats   SourceStats
	content []byte
	offset  int
	failed  error
}

// NewByteSourceProxy issues the Setup handshake. A reply other than
// SetupDone is fatal for the proxy.
func NewByteSourceProxy(ctx context.Context, p host.Proxy, inputPath string, totalCapacity, bufferMin uint64) (*ByteSourceProxy, error) {
	logger.Info("new byte-source proxy", "proxy", p.ID(), "input", inputPath)

	request := rpc.EncodeSourceRequest(rpc.SourceSetup{
		InputPath:     inputPath,
		TotalCapacity: totalCapacity,
		BufferMin:     bufferMin,
	})
	output, err := p.Call(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("source setup: %w", err)
	}
	reply, err := rpc.DecodeSourceResponse(output)
	if err != nil {
		return nil, fmt.Errorf("source setup: %v: %w", err, host.ErrInvalid)
	}
	if _, ok := reply.Plugin.(rpc.SourceSetupDone); !ok {
		return nil, fmt.Errorf("source setup: unexpected reply: %w", host.ErrInvalid)
	}
	return &ByteSourceProxy{proxy: p}, nil
}

// Stats returns the cumulative adapter stats.
func (s *ByteSourceProxy) Stats() SourceStats { return s.stats }

// Close logs the final stats and tears down the guest sandbox.
func (s *ByteSourceProxy) Close(ctx context.Context) error {
	logger.Info("byte-source proxy stats", "proxy", s.proxy.ID(), "stats", s.stats.String())
	return s.proxy.Close(ctx)
}

func (s *ByteSourceProxy) Len() int {
	return len(s.content) - s.offset
}

func (s *ByteSourceProxy) CurrentSlice() []byte {
	return s.content[s.offset:]
}

// Consume forwards the offset to the guest and advances the local view of
// the snapshot in step with it. The contract carries no error return; a
// failed round trip poisons the adapter and surfaces on the next Reload.
func (s *ByteSourceProxy) Consume(n int) {
	if s.failed != nil {
		return
	}
	if s.Len() >= n {
		s.offset += n
	}
	s.stats.CallsConsume++

	request := rpc.EncodeSourceRequest(rpc.SourceConsume{Offset: uint64(n)})
	output, err := s.proxy.Call(context.Background(), request)
	if err != nil {
		s.failed = fmt.Errorf("consume call: %w", err)
		return
	}
	reply, err := rpc.DecodeSourceResponse(output)
	if err != nil {
		s.failed = fmt.Errorf("consume reply: %v: %w", err, host.ErrInvalid)
		return
	}
	if _, ok := reply.Plugin.(rpc.SourceConsumeDone); !ok {
		s.failed = fmt.Errorf("consume reply: unexpected response: %w", host.ErrInvalid)
	}
}

// Reload asks the guest to refill and snapshots the returned bytes. The
// filter is accepted per the contract but not encoded on the wire;
// proxied sources deliver unfiltered windows.
func (s *ByteSourceProxy) Reload(_ context.Context, _ *stream.SourceFilter) (*stream.ReloadInfo, error) {
	if s.failed != nil {
		return nil, s.failed
	}
	s.stats.CallsReload++

	request := rpc.EncodeSourceRequest(rpc.SourceReload{})
	output, err := s.proxy.Call(context.Background(), request)
	if err != nil {
		return nil, fmt.Errorf("reload call: %w", err)
	}
	reply, err := rpc.DecodeSourceResponse(output)
	if err != nil {
		return nil, fmt.Errorf("reload reply: %v: %w", err, host.ErrInvalid)
	}
	resp, ok := reply.Plugin.(rpc.SourceReloadResult)
	if !ok {
		return nil, fmt.Errorf("reload reply: unexpected response: %w", host.ErrInvalid)
	}

	switch r := resp.Result.(type) {
	case rpc.ReloadOk:
		s.stats.ReloadOk++
		s.content = r.Bytes
		s.offset = 0
		return &stream.ReloadInfo{
			NewlyLoadedBytes: int(r.NewlyLoadedBytes),
			AvailableBytes:   int(r.AvailableBytes),
			SkippedBytes:     int(r.SkippedBytes),
		}, nil
	case rpc.ReloadEof:
		s.stats.ReloadEof++
		return nil, nil
	case rpc.ReloadErr:
		logger.Error("source reload failed", "proxy", s.proxy.ID(), "err", r.Msg)
		s.stats.ReloadError++
		return nil, &stream.UnrecoverableError{Msg: r.Msg}
	}
	return nil, fmt.Errorf("unknown reload result: %w", host.ErrInvalid)
}
