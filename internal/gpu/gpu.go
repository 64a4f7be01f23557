// Package gpu defines the compute-offload boundary for array opcodes
// whose cost clears opcode.ShouldDispatchGPU's threshold (spec section
// 4.I). The only implementation shipped here is a CPU-pool fallback: the
// example pack's one GPU binding (github.com/goki/vulkan, used by
// IntuitionAmiga-IntuitionEngine) is CGO-based and built around a
// windowing surface, not headless compute dispatch, so wiring it in would
// mean carrying a display-server dependency into a server-side runtime
// for no real benefit over the CPU pool. Device is still a real interface
// so a future native backend (a CUDA/Vulkan compute binding) is a second
// implementation away, not a rewrite.
package gpu

import (
	"context"
	"fmt"

	"github.com/agc-lang/agc/internal/opcode"
)

// Buffer is a handle to device-resident data.
type Buffer interface {
	Len() int
	Read(ctx context.Context) ([]opcode.Value, error)
}

// Program is a compiled kernel ready to Run against buffers.
type Program interface {
	Run(ctx context.Context, in Buffer) (Buffer, error)
}

// Device is the compute-offload boundary spec section 4.I describes:
// create a buffer, compile an opcode into a kernel, run it, read results
// back. internal/runtime only ever calls through this interface, so
// swapping the fallback for a native backend touches nothing else.
type Device interface {
	CreateBuffer(values []opcode.Value) (Buffer, error)
	Compile(op *opcode.Opcode, closure func([]opcode.Value) (opcode.Value, error)) (Program, error)
	Run(ctx context.Context, prog Program, in Buffer) (Buffer, error)
	Read(ctx context.Context, b Buffer) ([]opcode.Value, error)
}

type memBuffer struct{ values []opcode.Value }

func (b *memBuffer) Len() int { return len(b.values) }

func (b *memBuffer) Read(context.Context) ([]opcode.Value, error) {
	return b.values, nil
}

type cpuProgram struct {
	closure func([]opcode.Value) (opcode.Value, error)
}

func (p *cpuProgram) Run(ctx context.Context, in Buffer) (Buffer, error) {
	mb, ok := in.(*memBuffer)
	if !ok {
		return nil, fmt.Errorf("gpu: foreign buffer type %T", in)
	}
	out := make([]opcode.Value, len(mb.values))
	for i, v := range mb.values {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		r, err := p.closure([]opcode.Value{v})
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return &memBuffer{values: out}, nil
}

// cpuFallbackDevice runs every "GPU" dispatch synchronously on the calling
// goroutine; internal/runtime's worker pool is what actually gives it
// parallelism, by calling CreateBuffer/Run from multiple pool workers
// concurrently rather than this device doing its own fan-out.
type cpuFallbackDevice struct{}

// NewCPUFallbackDevice returns the only Device implementation this build
// ships, a direct, dependency-free stand-in for real GPU compute.
func NewCPUFallbackDevice() Device { return cpuFallbackDevice{} }

func (cpuFallbackDevice) CreateBuffer(values []opcode.Value) (Buffer, error) {
	return &memBuffer{values: values}, nil
}

func (cpuFallbackDevice) Compile(op *opcode.Opcode, closure func([]opcode.Value) (opcode.Value, error)) (Program, error) {
	if closure == nil {
		return nil, fmt.Errorf("gpu: opcode %s has no closure to compile", op.Name)
	}
	return &cpuProgram{closure: closure}, nil
}

func (cpuFallbackDevice) Run(ctx context.Context, prog Program, in Buffer) (Buffer, error) {
	return prog.Run(ctx, in)
}

func (cpuFallbackDevice) Read(ctx context.Context, b Buffer) ([]opcode.Value, error) {
	return b.Read(ctx)
}
