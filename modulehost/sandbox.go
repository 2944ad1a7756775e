package modulehost

import (
	"time"

	"github.com/wasmerio/wasmer-go/wasmer"

	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/core/state"
)

// CompiledArtifact is a parsed, validated wasm module ready for repeated
// invocation. One CompiledArtifact is shared across every tick a module
// stays registered; compilation itself is billed once, at
// CompileModuleArtifactFromSource time, not per invocation.
type CompiledArtifact struct {
	engine *wasmer.Engine
	store  *wasmer.Store
	module *wasmer.Module
}

// Compile parses wasm bytes into a CompiledArtifact. It does not execute any
// code; a module that merely fails to parse is rejected here, before it is
// ever registered.
func Compile(wasmBytes []byte) (*CompiledArtifact, error) {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	module, err := wasmer.NewModule(store, wasmBytes)
	if err != nil {
		return nil, err
	}
	return &CompiledArtifact{engine: engine, store: store, module: module}, nil
}

// fuelBudget tracks per-call instruction fuel. The compiler that produced
// the artifact is responsible for instrumenting periodic calls to the host
// "consume_fuel" import (spec section 4.2 treats compilation as an external
// collaborator); the host only enforces the budget it is handed.
type fuelBudget struct {
	remaining int64
	exhausted bool
}

// invocationRNG is the host-provided seeded PRNG a module may call instead
// of any syscall-level randomness. It is reseeded fresh per invocation from
// the caller-supplied seed, never shared across calls.
type invocationRNG struct {
	state uint64
}

func (r *invocationRNG) next() uint64 {
	r.state += 0x9E3779B97F4A7C15
	z := r.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// InvocationResult is what a sandboxed call produces on success: the raw
// output bytes (a canonical-encoded list of Directive candidates, decoded by
// the caller) and the fuel actually spent.
type InvocationResult struct {
	Output    []byte
	FuelSpent uint64
}

// Invoke runs one entry point of a compiled artifact against canonical
// input bytes, under the manifest's resource limits, with a caller-supplied
// fuel budget and PRNG seed. It never returns partial World mutation: a
// module has no access to World at all, only the bytes it is given and the
// bytes it returns.
//
// The guest ABI is fixed: an exported "alloc(len i32) -> ptr i32" function
// reserves a scratch buffer, an exported "memory" is the only heap a module
// manipulates, and the entry point is called as
// "<entry>(ptr i32, len i32) -> packed i64" where packed is
// (output_ptr << 32) | output_len, with a zero-length output meaning "no
// directives". An alloc pointer that is negative or leaves no room for the
// input returns ErrModuleMemoryExceeded; a call that outlives MaxExecTimeMs
// returns ErrModuleTimeExceeded; a call that traps returns ErrFuelExhausted
// if the fuel budget ran out, and the trap error itself otherwise.
func Invoke(artifact *CompiledArtifact, entry string, input []byte, limits state.ResourceLimits, fuel uint64, rngSeed uint64) (*InvocationResult, error) {
	budget := &fuelBudget{remaining: int64(fuel)}
	rng := &invocationRNG{state: rngSeed}

	importObject := wasmer.NewImportObject()
	importObject.Register("env", map[string]wasmer.IntoExtern{
		"consume_fuel": wasmer.NewFunction(
			artifact.store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I64), wasmer.NewValueTypes()),
			func(args []wasmer.Value) ([]wasmer.Value, error) {
				spent := args[0].I64()
				budget.remaining -= spent
				if budget.remaining < 0 {
					budget.exhausted = true
					return nil, worlderrors.ErrFuelExhausted
				}
				return nil, nil
			},
		),
		"host_rand": wasmer.NewFunction(
			artifact.store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(), wasmer.NewValueTypes(wasmer.I64)),
			func(args []wasmer.Value) ([]wasmer.Value, error) {
				return []wasmer.Value{wasmer.NewI64(int64(rng.next()))}, nil
			},
		),
	})

	instance, err := wasmer.NewInstance(artifact.module, importObject)
	if err != nil {
		return nil, err
	}
	defer instance.Close()

	memory, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, err
	}
	if limits.MaxMemoryPages > 0 && memory.Size().ToUint32() > limits.MaxMemoryPages {
		return nil, worlderrors.ErrModuleMemoryExceeded
	}

	alloc, err := instance.Exports.GetFunction("alloc")
	if err != nil {
		return nil, err
	}
	entryFn, err := instance.Exports.GetFunction(entry)
	if err != nil {
		return nil, err
	}

	inPtrRaw, err := alloc(int32(len(input)))
	if err != nil {
		return nil, err
	}
	inPtr, ok := inPtrRaw.(int32)
	if !ok {
		return nil, worlderrors.ErrModuleOutputTooLarge
	}
	if inPtr < 0 || int(inPtr)+len(input) > len(memory.Data()) {
		return nil, worlderrors.ErrModuleMemoryExceeded
	}
	copy(memory.Data()[inPtr:], input)

	deadline := time.Duration(limits.MaxExecTimeMs) * time.Millisecond
	result, execErr := callWithDeadline(entryFn, deadline, int32(inPtr), int32(len(input)))
	if execErr != nil {
		if budget.exhausted {
			return nil, worlderrors.ErrFuelExhausted
		}
		return nil, execErr
	}

	packed, ok := result.(int64)
	if !ok {
		return nil, worlderrors.ErrModuleOutputTooLarge
	}
	outPtr := uint32(packed >> 32)
	outLen := uint32(packed & 0xFFFFFFFF)
	if limits.MaxOutputBytes > 0 && outLen > limits.MaxOutputBytes {
		return nil, worlderrors.ErrModuleOutputTooLarge
	}
	data := memory.Data()
	if uint64(outPtr)+uint64(outLen) > uint64(len(data)) {
		return nil, worlderrors.ErrModuleOutputTooLarge
	}
	out := make([]byte, outLen)
	copy(out, data[outPtr:outPtr+outLen])

	return &InvocationResult{Output: out, FuelSpent: fuel - uint64(max64(budget.remaining, 0))}, nil
}

// callWithDeadline bounds wall-clock time for one entry-point call. The
// sandbox has no preemption primitive of its own (wasmer-go v1.0.4 exposes
// no interrupt handle), so the budget is enforced by racing the call
// against a timer; an exceeded deadline still lets the goroutine finish in
// the background; the result is simply discarded by the caller.
func callWithDeadline(fn wasmer.NativeFunction, deadline time.Duration, args ...interface{}) (interface{}, error) {
	type outcome struct {
		val interface{}
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(args...)
		done <- outcome{val: v, err: err}
	}()
	if deadline <= 0 {
		o := <-done
		return o.val, o.err
	}
	select {
	case o := <-done:
		return o.val, o.err
	case <-time.After(deadline):
		return nil, worlderrors.ErrModuleTimeExceeded
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// packUint64 is a helper for tests that want to build a synthetic
// "(ptr<<32)|len" return value without depending on guest-side encoding.
func packUint64(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}
