package marshal

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/wasmsandbox/core/internal/capability"
	"github.com/wasmsandbox/core/internal/instance"
	"github.com/wasmsandbox/core/internal/resource"
	"github.com/wasmsandbox/core/internal/runtime"
	"github.com/wasmsandbox/core/internal/value"
)

// fakeGuest models a minimal linear memory plus an alloc/dealloc/echo ABI
// entirely in Go, standing in for a real backend so the RPC protocol in
// call.go can be exercised without a WASM engine.
type fakeGuest struct {
	mem      []byte
	nextFree uint32
	freed    []uint32
}

func newFakeGuest(size uint32) *fakeGuest {
	return &fakeGuest{mem: make([]byte, size), nextFree: 64}
}

func (g *fakeGuest) ModuleID() uuid.UUID { return uuid.UUID{} }

func (g *fakeGuest) Call(ctx context.Context, name string, args []value.Value) ([]value.Value, error) {
	switch name {
	case "alloc":
		length, _ := args[0].I32()
		ptr := g.nextFree
		g.nextFree += uint32(length)
		return []value.Value{value.I32(int32(ptr))}, nil
	case "dealloc":
		ptr, _ := args[0].I32()
		g.freed = append(g.freed, uint32(ptr))
		return nil, nil
	case "echo":
		ptr, _ := args[0].I32()
		length, _ := args[1].I32()
		data, _ := g.ReadMemory(uint32(ptr), uint32(length))
		outPtr := g.nextFree
		g.nextFree += uint32(length)
		_ = g.WriteMemory(outPtr, data)
		return []value.Value{value.I32(int32(outPtr)), value.I32(int32(length))}, nil
	default:
		return nil, nil
	}
}

func (g *fakeGuest) ReadMemory(offset, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > uint64(len(g.mem)) {
		return nil, &runtime.MemoryOutOfBoundsError{Offset: offset, Length: length, MemorySize: uint32(len(g.mem))}
	}
	out := make([]byte, length)
	copy(out, g.mem[offset:offset+length])
	return out, nil
}

func (g *fakeGuest) WriteMemory(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(g.mem)) {
		return &runtime.MemoryOutOfBoundsError{Offset: offset, Length: uint32(len(data)), MemorySize: uint32(len(g.mem))}
	}
	copy(g.mem[offset:], data)
	return nil
}

func (g *fakeGuest) GrowMemory(delta uint32) (uint32, error) { return 0, nil }
func (g *fakeGuest) MemorySize() uint64                       { return uint64(len(g.mem)) }
func (g *fakeGuest) Interrupt(reason runtime.InterruptReason) {}
func (g *fakeGuest) Close(ctx context.Context) error          { return nil }

type fakeRuntime struct {
	guest *fakeGuest
}

func (r *fakeRuntime) Name() string { return "fake" }
func (r *fakeRuntime) Compile(ctx context.Context, b []byte) (*runtime.Module, error) {
	return nil, nil
}
func (r *fakeRuntime) Validate(ctx context.Context, b []byte) error { return nil }
func (r *fakeRuntime) Instantiate(ctx context.Context, m *runtime.Module, cfg runtime.InstanceConfig) (runtime.Instance, error) {
	return r.guest, nil
}
func (r *fakeRuntime) SnapshotCapabilities() runtime.Capabilities { return runtime.Capabilities{} }
func (r *fakeRuntime) Metrics() runtime.Metrics                   { return runtime.Metrics{} }

func newTestCaller(t *testing.T) *Caller {
	t.Helper()
	guest := newFakeGuest(4096)
	rt := &fakeRuntime{guest: guest}
	caps, err := capability.NewSet(capability.Strict)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	gov := resource.NewGovernor(resource.Quota{}, nil)
	mgr, err := instance.New(context.Background(), rt, &runtime.Module{}, runtime.InstanceConfig{}, caps, gov, nil)
	if err != nil {
		t.Fatalf("instance.New: %v", err)
	}
	return NewCaller(mgr, NewRegistry(FormatJSON), "alloc", "dealloc", 0, nil)
}

func TestCallRoundTripsJSONThroughEcho(t *testing.T) {
	c := newTestCaller(t)
	in := echoPayload{Name: "Alice", Values: []int{1, 2, 3}}
	var out echoPayload

	frame, err := c.Call(context.Background(), "echo", in, &out, "", CancelToken{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Name != in.Name || len(out.Values) != len(in.Values) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
	if frame.FunctionName != "echo" {
		t.Fatalf("got frame.FunctionName %q, want echo", frame.FunctionName)
	}

	wantBlob, _ := json.Marshal(in)
	if string(frame.ArgBlob) != string(wantBlob) {
		t.Fatalf("frame.ArgBlob = %s, want %s", frame.ArgBlob, wantBlob)
	}
}

func TestCallDeallocatesArgumentAndResultBuffers(t *testing.T) {
	c := newTestCaller(t)
	var out echoPayload
	if _, err := c.Call(context.Background(), "echo", echoPayload{Name: "x"}, &out, "", CancelToken{}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	guest := c.mgr.Backend().(*fakeGuest)
	if len(guest.freed) != 2 {
		t.Fatalf("got %d dealloc calls, want 2 (arg + result)", len(guest.freed))
	}
}

func TestCallOverrideFormatWinsOverCallerDefault(t *testing.T) {
	c := newTestCaller(t)
	var out echoPayload
	in := echoPayload{Name: "Msgpack", Values: []int{9}}
	if _, err := c.Call(context.Background(), "echo", in, &out, FormatMsgpack, CancelToken{}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Name != "Msgpack" {
		t.Fatalf("got %+v, want Name=Msgpack (msgpack override applied both ways)", out)
	}
}
