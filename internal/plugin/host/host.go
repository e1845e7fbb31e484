// Package host loads sandboxed plugin guests and brokers the binary
// request/response protocol across the host/sandbox boundary.
//
// A Proxy is the host-side handle to one guest instance: it owns the
// sandbox and sequences requests, one outstanding round trip at a time. A
// Factory instantiates proxies for one plugin binary. The Runtime is the
// named registry of factories; it mints proxy ids and drives the
// lifecycle handshake.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kruss/chipmunk/internal/logger"
	"github.com/kruss/chipmunk/internal/plugin/rpc"
)

var (
	// ErrInvalid marks a protocol or ABI violation: an unexpected response
	// variant, a codec failure, an out-of-bounds response descriptor, or a
	// guest trap. The proxy is poisoned; no further calls may be issued.
	ErrInvalid = errors.New("invalid plugin response")

	// ErrUnsupported marks a request the registry cannot service.
	ErrUnsupported = errors.New("unsupported plugin")
)

// ProxyID is a process-unique id assigned monotonically by the Runtime.
type ProxyID uint64

// Proxy is a host-side handle to a single guest instance. A proxy must
// not be shared across goroutines; serialization is by exclusive
// ownership.
type Proxy interface {
	ID() ProxyID
	// Call sends one encoded request and blocks for the response buffer.
	Call(ctx context.Context, request []byte) ([]byte, error)
	// Close tears down the sandbox and releases all guest memory.
	Close(ctx context.Context) error
}

// Factory instantiates sandboxed proxies for one plugin binary.
type Factory interface {
	Create(ctx context.Context, id ProxyID) (Proxy, error)
}

// Runtime is the named registry of plugin factories. The factory table is
// writable during setup and read-mostly afterwards; proxy ids are
// atomic-monotonic and never reused within a process.
type Runtime struct {
	mu        sync.RWMutex
	factories map[string]Factory
	nextID    atomic.Uint64
}

func NewRuntime() *Runtime {
	return &Runtime{factories: make(map[string]Factory)}
}

// AddFactory registers a factory under name, replacing any previous entry.
func (r *Runtime) AddFactory(name string, factory Factory) {
	logger.Info("add plugin factory", "name", name)
	r.mu.Lock()
	r.factories[name] = factory
	r.mu.Unlock()
}

// Names lists the registered factory names.
func (r *Runtime) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// CreateProxy instantiates a sandbox for the named plugin, performs the
// Init handshake, and returns the proxy. An unregistered name returns
// ErrUnsupported without instantiating anything; a failed handshake tears
// the sandbox down and returns ErrInvalid.
func (r *Runtime) CreateProxy(ctx context.Context, name string) (Proxy, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plugin %q not registered: %w", name, ErrUnsupported)
	}

	id := ProxyID(r.nextID.Add(1) - 1)
	proxy, err := factory.Create(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("create proxy<%d> for %q: %w", id, name, err)
	}

	if err := initProxy(ctx, proxy); err != nil {
		_ = proxy.Close(ctx)
		return nil, fmt.Errorf("init proxy<%d> for %q: %w", id, name, err)
	}
	return proxy, nil
}

// initProxy performs the Init handshake. Init must precede any plugin
// call on a proxy.
func initProxy(ctx context.Context, proxy Proxy) error {
	request := rpc.EncodeRuntimeRequest(rpc.RuntimeInit)
	logger.Debug("send init request", "proxy", proxy.ID(), "bytes", len(request))

	output, err := proxy.Call(ctx, request)
	if err != nil {
		return err
	}
	resp, err := rpc.DecodeRuntimeResponse(output)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	if resp == nil || resp.Kind != rpc.RuntimeRespInit {
		return fmt.Errorf("unexpected init reply: %w", ErrInvalid)
	}
	return nil
}

// Version reports the guest's wire protocol revision.
func Version(ctx context.Context, proxy Proxy) (uint32, error) {
	output, err := proxy.Call(ctx, rpc.EncodeRuntimeRequest(rpc.RuntimeVersion))
	if err != nil {
		return 0, err
	}
	resp, err := rpc.DecodeRuntimeResponse(output)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	if resp == nil || resp.Kind != rpc.RuntimeRespVersion {
		return 0, fmt.Errorf("unexpected version reply: %w", ErrInvalid)
	}
	return resp.Revision, nil
}

// Shutdown notifies the guest before teardown. Optional; the host may
// drop a proxy without it.
func Shutdown(ctx context.Context, proxy Proxy) error {
	output, err := proxy.Call(ctx, rpc.EncodeRuntimeRequest(rpc.RuntimeShutdown))
	if err != nil {
		return err
	}
	resp, err := rpc.DecodeRuntimeResponse(output)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	if resp == nil || resp.Kind != rpc.RuntimeRespShutdown {
		return fmt.Errorf("unexpected shutdown reply: %w", ErrInvalid)
	}
	return nil
}
