package tools

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/magray/magray/pkg/magray"
)

// maxWasmMemoryPages bounds every module's linear memory regardless of its
// manifest's declared limit, so a module with no limits.max_mem_mb set (or
// one set absurdly high) still cannot grow past a sane process-wide ceiling.
// 256 pages is 16MiB, generous for the small host-tool guests this runtime
// targets.
const maxWasmMemoryPages = 256

// WasmRuntime executes RuntimeWasm tools inside a wazero sandbox, enforcing
// the Manifest's wall-clock limit via context cancellation, its
// output-size limit by capping the bytes read back from guest memory, and
// a process-wide linear-memory ceiling. There is no WASM runtime in the
// teacher's own stack; wazero is the only pure-Go, CGo-free WASM runtime
// available across the retrieved pack and is wired in as the DOMAIN STACK
// sandbox engine per SPEC_FULL.md §8.
//
// Per-manifest MaxMemoryMB is checked by checkMemoryLimit after
// instantiation and again after the call; it is not a cap while the guest
// runs, where only the process-wide maxWasmMemoryPages ceiling applies.
//
// Not enforced: MaxFuel (wazero has no public
// fuel-metering API; CPU exhaustion is bounded only indirectly, by the
// wall-clock timeout in Invoke), and capability-scoped host imports (a
// guest granted CapFSRead/CapFSWrite/CapNetDomain gets no filesystem or
// network host functions at all — those capabilities currently only
// narrow CheckCapabilities' dispatch eligibility, not what the guest can
// actually call; the guest's only host imports are WASI stdio).
type WasmRuntime struct {
	rt wazero.Runtime
}

// NewWasmRuntime builds a wazero runtime whose modules close when ctx is
// done and whose linear memory is capped at maxWasmMemoryPages regardless
// of what an individual manifest asks for.
func NewWasmRuntime(ctx context.Context) (*WasmRuntime, error) {
	cfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(maxWasmMemoryPages)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, magray.WrapError(magray.ErrRuntimeCrash, err, "instantiate WASI")
	}
	return &WasmRuntime{rt: rt}, nil
}

// Close releases the underlying wazero runtime and every module it
// compiled.
func (w *WasmRuntime) Close(ctx context.Context) error {
	return w.rt.Close(ctx)
}

// Invoke loads the manifest's entry .wasm binary, instantiates it, invokes
// its exported "invoke" function with the JSON-encoded args, and decodes
// its JSON-encoded result. It enforces the manifest's wall-clock limit via
// context timeout, its output-size limit on the bytes read back from
// guest memory, and its memory limit by sampling guest memory size right
// after instantiation and again after the call returns.
//
// The guest module must export a function named "invoke" taking a pointer
// and length into guest linear memory and returning a packed
// pointer/length pair for its JSON response; this is the same
// allocate-write-call-read convention used by tinygo's default ABI.
func (w *WasmRuntime) Invoke(ctx context.Context, m *Manifest, args map[string]any) (map[string]any, error) {
	wallTimeout := time.Duration(m.Limits.MaxWallMillis) * time.Millisecond
	if wallTimeout <= 0 {
		wallTimeout = 10 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, wallTimeout)
	defer cancel()

	code, err := os.ReadFile(m.Entry)
	if err != nil {
		return nil, magray.WrapError(magray.ErrRuntimeCrash, err, "read wasm entry for %q", m.Name)
	}

	compiled, err := w.rt.CompileModule(runCtx, code)
	if err != nil {
		return nil, magray.WrapError(magray.ErrRuntimeCrash, err, "compile wasm module for %q", m.Name)
	}
	defer compiled.Close(runCtx)

	modCfg := wazero.NewModuleConfig().WithStdout(os.Stdout).WithStderr(os.Stderr)

	mod, err := w.rt.InstantiateModule(runCtx, compiled, modCfg)
	if err != nil {
		return nil, magray.WrapError(magray.ErrSandboxViolation, err, "instantiate wasm module for %q", m.Name)
	}
	defer mod.Close(runCtx)

	if err := checkMemoryLimit(mod, m.Limits.MaxMemoryMB, m.Name); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return nil, magray.WrapError(magray.ErrValidationError, err, "marshal args for %q", m.Name)
	}

	out, err := callInvoke(runCtx, mod, payload, m.Limits.MaxOutputBytes)
	if err != nil {
		if runCtx.Err() != nil {
			return nil, magray.NewError(magray.ErrTimeout, "tool %q exceeded wall limit of %s", m.Name, wallTimeout)
		}
		return nil, magray.WrapError(magray.ErrSandboxViolation, err, "invoke %q", m.Name)
	}

	if err := checkMemoryLimit(mod, m.Limits.MaxMemoryMB, m.Name); err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, magray.WrapError(magray.ErrRuntimeCrash, err, "decode result from %q", m.Name)
	}
	return result, nil
}

// callInvoke writes payload into the guest's linear memory, calls its
// exported "invoke" and "allocate" functions, and reads back the result
// bytes, capping the read at maxOutputBytes to bound a misbehaving guest's
// memory claims.
func callInvoke(ctx context.Context, mod api.Module, payload []byte, maxOutputBytes int64) ([]byte, error) {
	alloc := mod.ExportedFunction("allocate")
	invoke := mod.ExportedFunction("invoke")
	if alloc == nil || invoke == nil {
		return nil, magray.NewError(magray.ErrManifestInvalid, "wasm module missing required exports allocate/invoke")
	}

	allocRes, err := alloc.Call(ctx, uint64(len(payload)))
	if err != nil {
		return nil, err
	}
	ptr := uint32(allocRes[0])

	mem := mod.Memory()
	if !mem.Write(ptr, payload) {
		return nil, magray.NewError(magray.ErrSandboxViolation, "guest memory write out of bounds")
	}

	res, err := invoke.Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil {
		return nil, err
	}
	packed := res[0]
	outPtr := uint32(packed >> 32)
	outLen := uint32(packed)
	if maxOutputBytes > 0 && int64(outLen) > maxOutputBytes {
		return nil, magray.NewError(magray.ErrResourceExhausted, "tool output %d bytes exceeds limit %d", outLen, maxOutputBytes)
	}

	out, ok := mem.Read(outPtr, outLen)
	if !ok {
		return nil, magray.NewError(magray.ErrSandboxViolation, "guest memory read out of bounds")
	}
	// Copy out of guest memory before the module closes.
	buf := make([]byte, len(out))
	copy(buf, out)
	return buf, nil
}

// checkMemoryLimit rejects a module whose current linear memory exceeds
// the manifest's declared MaxMemoryMB. maxMemoryMB <= 0 means unlimited
// (still bounded by the runtime-wide maxWasmMemoryPages ceiling set in
// NewWasmRuntime). Called once right after instantiation, to catch a
// guest whose data/bss sections alone already exceed its own declared
// budget, and once after invoke returns, to catch growth during the call.
func checkMemoryLimit(mod api.Module, maxMemoryMB int64, name string) error {
	if maxMemoryMB <= 0 {
		return nil
	}
	limitBytes := maxMemoryMB * 1024 * 1024
	size := int64(mod.Memory().Size())
	if size > limitBytes {
		return magray.NewError(magray.ErrResourceExhausted, "tool %q guest memory %d bytes exceeds limit %d bytes", name, size, limitBytes)
	}
	return nil
}
