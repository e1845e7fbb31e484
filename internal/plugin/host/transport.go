package host

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/kruss/chipmunk/internal/logger"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Guest ABI layout. The first 8 bytes of guest memory are reserved for
// the response descriptor the guest writes back: (ptr, len) as two
// little-endian u32s. The encoded request is placed directly after it,
// 4-byte aligned.
const (
	respDescOffset uint32 = 0
	respDescLen    uint32 = 8
	requestOffset         = respDescLen

	guestExportMessage = "message"
	hostModuleName     = "host"
	hostExportPrint    = "host_print"
)

// sandboxProxy is the common host-side handle for both sandbox flavors.
// Calls are strictly synchronous: one outstanding request, and the next
// request is only sent after its response was recovered.
type sandboxProxy struct {
	id       ProxyID
	runtime  wazero.Runtime
	module   api.Module
	message  api.Function
	poisoned bool
}

func newSandboxProxy(ctx context.Context, id ProxyID, runtime wazero.Runtime, module api.Module) (*sandboxProxy, error) {
	if module.Memory() == nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("guest exports no memory")
	}
	message := module.ExportedFunction(guestExportMessage)
	if message == nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("guest exports no %q function", guestExportMessage)
	}
	return &sandboxProxy{id: id, runtime: runtime, module: module, message: message}, nil
}

func (p *sandboxProxy) ID() ProxyID { return p.id }

func (p *sandboxProxy) Close(ctx context.Context) error {
	return p.runtime.Close(ctx)
}

// Call marshals one request into guest memory, invokes the guest's
// message entry point, and recovers the response buffer from the returned
// descriptor. A guest trap or an out-of-bounds descriptor poisons the
// proxy.
func (p *sandboxProxy) Call(ctx context.Context, request []byte) ([]byte, error) {
	if p.poisoned {
		return nil, fmt.Errorf("proxy<%d> is poisoned: %w", p.id, ErrInvalid)
	}
	logger.Debug("send request", "proxy", p.id, "bytes", len(request))

	mem := p.module.Memory()
	if !mem.Write(requestOffset, request) {
		p.poisoned = true
		return nil, fmt.Errorf("proxy<%d>: request of %d bytes does not fit guest memory: %w",
			p.id, len(request), ErrInvalid)
	}

	_, err := p.message.Call(ctx,
		uint64(respDescOffset), uint64(requestOffset), uint64(len(request)))
	if err != nil {
		p.poisoned = true
		return nil, fmt.Errorf("proxy<%d>: guest trapped: %v: %w", p.id, err, ErrInvalid)
	}

	desc, ok := mem.Read(respDescOffset, respDescLen)
	if !ok {
		p.poisoned = true
		return nil, fmt.Errorf("proxy<%d>: response descriptor unreadable: %w", p.id, ErrInvalid)
	}
	addr := binary.LittleEndian.Uint32(desc[0:4])
	length := binary.LittleEndian.Uint32(desc[4:8])

	data, ok := mem.Read(addr, length)
	if !ok {
		p.poisoned = true
		return nil, fmt.Errorf("proxy<%d>: response descriptor (%d,%d) out of bounds: %w",
			p.id, addr, length, ErrInvalid)
	}

	// Memory reads are views into guest memory; copy before the guest can
	// touch it again.
	response := make([]byte, len(data))
	copy(response, data)

	logger.Debug("received response", "proxy", p.id, "bytes", len(response))
	return response, nil
}

// instantiateHostImports exposes the host-side import surface shared by
// both flavors: host_print, a debug log sink reading a UTF-8 string from
// guest memory.
func instantiateHostImports(ctx context.Context, runtime wazero.Runtime, id ProxyID) error {
	_, err := runtime.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, ptr, size uint32) {
			text, ok := m.Memory().Read(ptr, size)
			if !ok {
				logger.Warn("host_print out of bounds", "proxy", id, "ptr", ptr, "len", size)
				return
			}
			logger.Debug(fmt.Sprintf("proxy<%d> : %s", id, text))
		}).
		Export(hostExportPrint).
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate host imports: %w", err)
	}
	return nil
}
