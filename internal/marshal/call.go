package marshal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wasmsandbox/core/internal/hostfn"
	"github.com/wasmsandbox/core/internal/instance"
	"github.com/wasmsandbox/core/internal/logging"
	"github.com/wasmsandbox/core/internal/runtime"
	"github.com/wasmsandbox/core/internal/value"
)

// CancelToken wraps the caller-supplied cancellation primitive for a single
// typed call (spec.md §3's Call Frame: "caller-supplied cancellation
// token"). The zero value carries no deadline.
type CancelToken struct {
	ctx context.Context
}

// NewCancelToken wraps ctx as a CancelToken.
func NewCancelToken(ctx context.Context) CancelToken { return CancelToken{ctx: ctx} }

func (c CancelToken) context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// CallFrame is the ephemeral per-call record from spec.md §3.
type CallFrame struct {
	ID           uuid.UUID
	FunctionName string
	ArgBlob      []byte
	StartedAt    time.Time
	Deadline     time.Time
	FuelBudget   uint64
}

// sentinelMagic is written to sentinelOffset before every call and checked
// after an unclean unwind; a mismatch means linear memory is in an
// undefined state and the instance must be marked dirty (spec.md §4.7).
var sentinelMagic = [4]byte{0x4f, 0x53, 0x42, 0x58} // "OSBX"

// Caller binds the marshalling protocol to one instance lifetime, reusing
// its exclusive call lock per spec.md §4.7's per-instance ordering
// guarantee. A fresh Caller is not required across Reset: the Manager
// always hands back the live backend via Backend().
type Caller struct {
	mgr     *instance.Manager
	codecs  *Registry
	alloc   string
	dealloc string
	log     logging.Logger

	sentinelOffset uint32
}

// NewCaller constructs a Caller over mgr using allocExport/deallocExport as
// the guest's exported allocator/deallocator names (spec.md §6's WASM ABI).
// sentinelOffset names a byte range the caller owns for the post-unwind
// integrity check; it must not overlap guest-managed heap the module
// itself writes during normal operation (conventionally placed at a fixed
// low offset reserved by convention between host and guest).
func NewCaller(mgr *instance.Manager, codecs *Registry, allocExport, deallocExport string, sentinelOffset uint32, log logging.Logger) *Caller {
	if log == nil {
		log = logging.NewNoOp()
	}
	return &Caller{mgr: mgr, codecs: codecs, alloc: allocExport, dealloc: deallocExport, sentinelOffset: sentinelOffset, log: log}
}

// Call performs one typed host->guest->host round trip: encode args with
// the resolved codec, ask the guest's allocator for a buffer, write the
// serialized bytes, invoke name with (ptr, len), read back the guest's
// (ptr, len) result pair, decode into out, and always attempt deallocation
// even after a mid-call trap (spec.md §4.7).
func (c *Caller) Call(ctx context.Context, name string, args any, out any, override Format, cancel CancelToken) (CallFrame, error) {
	unlock, err := c.mgr.Lock()
	if err != nil {
		return CallFrame{}, err
	}
	// release guards against a double-unlock: classifyCallError may need to
	// call Manager.Terminate, which takes the same lock Lock() just took, so
	// the call lock must be dropped before that happens.
	released := false
	release := func() {
		if !released {
			released = true
			unlock()
		}
	}
	defer release()

	codec, err := c.codecs.Resolve(override)
	if err != nil {
		return CallFrame{}, err
	}

	blob, err := codec.Encode(args)
	if err != nil {
		return CallFrame{}, fmt.Errorf("marshal: encode args: %w", err)
	}

	frame := CallFrame{ID: uuid.New(), FunctionName: name, ArgBlob: blob, StartedAt: time.Now()}
	if dl, ok := cancel.context().Deadline(); ok {
		frame.Deadline = dl
	}

	backend := c.mgr.Backend()
	if err := c.writeSentinel(backend); err != nil {
		return frame, err
	}

	argPtr, err := c.allocate(ctx, backend, len(blob))
	if err != nil {
		return frame, err
	}
	if err := backend.WriteMemory(argPtr, blob); err != nil {
		return frame, err
	}

	callCtx := cancel.context()
	resultArgs := []value.Value{value.I32(int32(argPtr)), value.I32(int32(len(blob)))}
	results, callErr := backend.Call(callCtx, name, resultArgs)

	// Always attempt to free the argument buffer, even on a trap; a
	// deallocation failure is logged but never masks the original error
	// (spec.md §4.7).
	if dErr := c.deallocate(ctx, backend, argPtr, uint32(len(blob))); dErr != nil {
		c.log.Error(&DeallocationFailedError{Cause: dErr}, "failed to free argument buffer", "call_id", frame.ID)
	}

	if callErr != nil {
		release()
		return frame, c.classifyCallError(backend, callCtx, callErr)
	}

	// Poll the guest's actual memory size against the quota even though the
	// call itself succeeded: a backend with no native memory-limit hook
	// (wazero) only learns about a guest's own memory.grow after the fact
	// (spec.md §4.5's polling fallback).
	if memErr := c.mgr.Governor().AccountMemory(backend.MemorySize()); memErr != nil {
		return frame, memErr
	}

	resultPtr, resultLen, err := scalarPairOut(results)
	if err != nil {
		return frame, err
	}

	resultBlob, err := backend.ReadMemory(resultPtr, resultLen)
	if err != nil {
		return frame, err
	}
	if dErr := c.deallocate(ctx, backend, resultPtr, resultLen); dErr != nil {
		c.log.Error(&DeallocationFailedError{Cause: dErr}, "failed to free result buffer", "call_id", frame.ID)
	}

	if out != nil {
		if err := codec.Decode(resultBlob, out); err != nil {
			return frame, fmt.Errorf("marshal: decode result: %w", err)
		}
	}
	return frame, nil
}

// classifyCallError distinguishes a clean cancellation/timeout unwind from
// one that left linear memory in an undefined state, per spec.md §4.7 and
// §5: "it may have applied partial effects inside the guest — the instance
// is flagged dirty and must be Reset before further use unless the backend
// guarantees safe unwind." Per spec.md's Failure Semantics Summary and its
// §9 Open Question resolution, a Timeout (and any uncaught backend trap)
// terminates the instance outright unless the backend's Runtime advertises
// SafeUnwindOnTimeout; a capability denial is the one failure mode that
// always leaves the instance Running.
func (c *Caller) classifyCallError(backend runtime.Instance, callCtx context.Context, callErr error) error {
	switch callCtx.Err() {
	case context.Canceled:
		backend.Interrupt(runtime.InterruptCancelled)
		if !c.sentinelIntact(backend) {
			c.mgr.MarkDirty()
		}
		return &CancelledError{}
	case context.DeadlineExceeded:
		backend.Interrupt(runtime.InterruptTimeout)
		c.terminateUnlessSafeUnwind()
		return &TimeoutError{}
	default:
		var sv *hostfn.SecurityViolationError
		if errors.As(callErr, &sv) {
			return callErr
		}
		c.terminateUnlessSafeUnwind()
		return callErr
	}
}

// terminateUnlessSafeUnwind marks the instance dirty and terminates it
// unless its backend Runtime guarantees the unwind left memory
// well-defined. The caller must not hold the instance's call lock.
func (c *Caller) terminateUnlessSafeUnwind() {
	if c.mgr.SafeUnwindOnTimeout() {
		return
	}
	c.mgr.MarkDirty()
	if err := c.mgr.Terminate(context.Background(), false); err != nil {
		c.log.Error(err, "failed to terminate instance after unsafe unwind")
	}
}

func (c *Caller) allocate(ctx context.Context, backend runtime.Instance, length int) (uint32, error) {
	out, err := backend.Call(ctx, c.alloc, []value.Value{value.I32(int32(length))})
	if err != nil {
		return 0, fmt.Errorf("marshal: allocator call: %w", err)
	}
	ptr, err := scalarI32Out(out)
	if err != nil {
		return 0, err
	}
	if ptr == 0 {
		return 0, &AllocationFailedError{RequestedLength: length}
	}
	return uint32(ptr), nil
}

func (c *Caller) deallocate(ctx context.Context, backend runtime.Instance, ptr, length uint32) error {
	_, err := backend.Call(ctx, c.dealloc, []value.Value{value.I32(int32(ptr)), value.I32(int32(length))})
	return err
}

func (c *Caller) writeSentinel(backend runtime.Instance) error {
	return backend.WriteMemory(c.sentinelOffset, sentinelMagic[:])
}

func (c *Caller) sentinelIntact(backend runtime.Instance) bool {
	data, err := backend.ReadMemory(c.sentinelOffset, uint32(len(sentinelMagic)))
	if err != nil {
		return false
	}
	return string(data) == string(sentinelMagic[:])
}

func scalarI32Out(out []value.Value) (int32, error) {
	if len(out) != 1 {
		return 0, fmt.Errorf("marshal: expected 1 scalar result, got %d", len(out))
	}
	return out[0].I32()
}

func scalarPairOut(out []value.Value) (uint32, uint32, error) {
	if len(out) != 2 {
		return 0, 0, fmt.Errorf("marshal: expected (ptr, len) result pair, got %d values", len(out))
	}
	ptr, err := out[0].I32()
	if err != nil {
		return 0, 0, err
	}
	length, err := out[1].I32()
	if err != nil {
		return 0, 0, err
	}
	return uint32(ptr), uint32(length), nil
}

// SentinelMagicLen is exposed for tests that need to assert sentinel
// placement without duplicating the magic constant.
func SentinelMagicLen() int { return len(sentinelMagic) }
