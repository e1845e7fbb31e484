package host

import (
	"context"
	"fmt"

	"github.com/kruss/chipmunk/internal/logger"
	"github.com/tetratelabs/wazero"
)

// DefaultMemoryLimitPages caps guest linear memory at 256 MiB (64 KiB
// pages).
const DefaultMemoryLimitPages = 4096

// WasmFactory creates pure sandboxes: no filesystem, no network, no
// clocks beyond the compute substrate. The only host import is
// host_print.
type WasmFactory struct {
	binary           []byte
	memoryLimitPages uint32
}

// WasmOption configures a WasmFactory.
type WasmOption func(*WasmFactory)

// WithMemoryLimitPages overrides the guest memory cap in 64 KiB pages.
func WithMemoryLimitPages(pages uint32) WasmOption {
	return func(f *WasmFactory) { f.memoryLimitPages = pages }
}

func NewWasmFactory(binary []byte, opts ...WasmOption) *WasmFactory {
	f := &WasmFactory{binary: binary, memoryLimitPages: DefaultMemoryLimitPages}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *WasmFactory) Create(ctx context.Context, id ProxyID) (Proxy, error) {
	logger.Info("create wasm proxy", "proxy", id)

	cfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(f.memoryLimitPages)
	runtime := wazero.NewRuntimeWithConfig(ctx, cfg)

	if err := instantiateHostImports(ctx, runtime, id); err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}

	module, err := runtime.InstantiateWithConfig(ctx, f.binary,
		wazero.NewModuleConfig().WithName(fmt.Sprintf("proxy-%d", id)))
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate guest: %w", err)
	}
	proxy, err := newSandboxProxy(ctx, id, runtime, module)
	if err != nil {
		return nil, err
	}
	logger.Debug("wasm memory", "proxy", id, "bytes", module.Memory().Size())
	return proxy, nil
}
