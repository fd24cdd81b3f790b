package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/queue"
)

func TestDispatchRunsEveryInvocationOnce(t *testing.T) {
	d := NewDispatcher(4)
	defer d.Release()

	const groups, size = 37, 64
	hits := make([]atomic.Int32, groups*size)
	err := d.Dispatch(context.Background(), "count", groups, size, func(g Group) {
		g.Invocations(func(local uint32) {
			hits[g.GlobalID(local)].Add(1)
		})
	})
	if err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	for i := range hits {
		if n := hits[i].Load(); n != 1 {
			t.Fatalf("invocation %d ran %d times", i, n)
		}
	}
}

func TestInvocationsActAsBarrier(t *testing.T) {
	d := NewDispatcher(2)
	defer d.Release()

	const size = 128
	var mismatches atomic.Int32
	err := d.Dispatch(context.Background(), "barrier", 16, size, func(g Group) {
		var shared [size]uint32
		g.Invocations(func(local uint32) {
			shared[local] = g.GlobalID(local)
		})
		g.Invocations(func(local uint32) {
			// read a neighbor written in the first phase
			other := (local + 1) % size
			if shared[other] != g.GlobalID(other) {
				mismatches.Add(1)
			}
		})
	})
	if err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if mismatches.Load() != 0 {
		t.Errorf("%d reads observed unwritten shared memory", mismatches.Load())
	}
}

func TestDispatchIndirectRecoversRemappedGroups(t *testing.T) {
	d := NewDispatcher(4)
	defer d.Release()

	args := queue.NewDispatchArgs()
	args.X.Store(1000)
	args.Remap(100)
	if _, y, _ := args.Grid(); y == 1 {
		t.Fatal("expected a 2D grid")
	}

	seen := make([]atomic.Int32, 1000)
	var outOfRange atomic.Int32
	err := d.DispatchIndirect(context.Background(), "indirect", args, 1, func(g Group) {
		if g.Linear >= 1000 {
			outOfRange.Add(1)
			return
		}
		seen[g.Linear].Add(1)
	})
	if err != nil {
		t.Fatalf("DispatchIndirect() = %v", err)
	}
	if outOfRange.Load() != 0 {
		t.Errorf("%d padding groups reached the kernel", outOfRange.Load())
	}
	for i := range seen {
		if seen[i].Load() != 1 {
			t.Fatalf("group %d ran %d times", i, seen[i].Load())
		}
	}
}

func TestDispatchIndirectEmptyGrid(t *testing.T) {
	d := NewDispatcher(1)
	defer d.Release()

	ran := false
	err := d.DispatchIndirect(context.Background(), "empty", queue.NewDispatchArgs(), 64, func(Group) { ran = true })
	if err != nil || ran {
		t.Errorf("empty dispatch: err=%v ran=%v", err, ran)
	}
}

func TestDispatchHonorsCancelledContext(t *testing.T) {
	d := NewDispatcher(2)
	defer d.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Int32
	err := d.Dispatch(ctx, "cancelled", 10, 1, func(Group) { ran.Add(1) })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Dispatch() = %v, want context.Canceled", err)
	}
	if ran.Load() != 0 {
		t.Errorf("%d groups ran after cancellation", ran.Load())
	}
}

func TestDispatchReportsKernelPanic(t *testing.T) {
	d := NewDispatcher(2)
	defer d.Release()

	err := d.Dispatch(context.Background(), "boom", 8, 1, func(g Group) {
		if g.Linear == 3 {
			panic("bad group")
		}
	})
	if !errors.Is(err, ErrKernelPanic) {
		t.Errorf("Dispatch() = %v, want ErrKernelPanic", err)
	}

	// the pool stays usable
	if err := d.Dispatch(context.Background(), "after", 4, 1, func(Group) {}); err != nil {
		t.Errorf("Dispatch() after panic = %v", err)
	}
}
