package host

import (
	"context"
	"fmt"

	"github.com/kruss/chipmunk/internal/logger"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WasiFactory creates I/O sandboxes: the pure capability surface plus a
// filesystem preopen rooted at mountDir, visible to the guest as "/".
// Byte-source guests use it to read their input files.
type WasiFactory struct {
	binary           []byte
	mountDir         string
	memoryLimitPages uint32
}

// WasiOption configures a WasiFactory.
type WasiOption func(*WasiFactory)

// WithWasiMemoryLimitPages overrides the guest memory cap in 64 KiB pages.
func WithWasiMemoryLimitPages(pages uint32) WasiOption {
	return func(f *WasiFactory) { f.memoryLimitPages = pages }
}

func NewWasiFactory(binary []byte, mountDir string, opts ...WasiOption) *WasiFactory {
	f := &WasiFactory{binary: binary, mountDir: mountDir, memoryLimitPages: DefaultMemoryLimitPages}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// logWriter forwards guest stdout/stderr lines to the host logger.
type logWriter struct {
	id ProxyID
}

func (w *logWriter) Write(p []byte) (int, error) {
	logger.Debug(fmt.Sprintf("proxy<%d> | %s", w.id, p))
	return len(p), nil
}

func (f *WasiFactory) Create(ctx context.Context, id ProxyID) (Proxy, error) {
	logger.Info("create wasi proxy", "proxy", id, "mount", f.mountDir)

	cfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(f.memoryLimitPages)
	runtime := wazero.NewRuntimeWithConfig(ctx, cfg)

	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)
	if err := instantiateHostImports(ctx, runtime, id); err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}

	out := &logWriter{id: id}
	moduleConfig := wazero.NewModuleConfig().
		WithName(fmt.Sprintf("wasi-proxy-%d", id)).
		WithStdout(out).
		WithStderr(out).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(f.mountDir, "/"))

	// Instantiation runs the guest's conventional entry point; the guest
	// must return from it with its exports still live.
	module, err := runtime.InstantiateWithConfig(ctx, f.binary, moduleConfig)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi guest: %w", err)
	}

	return newSandboxProxy(ctx, id, runtime, module)
}
