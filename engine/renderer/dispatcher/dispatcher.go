// Package dispatcher runs compute-style kernels on the CPU. A dispatch is a grid of
// workgroups; workgroups run concurrently on a persistent worker pool while the invocations
// of one workgroup run in order on a single goroutine, so sequential calls to
// Group.Invocations behave like a workgroup barrier. Dispatches are issued one after another
// by the host, so a dispatch observes every write of the dispatches issued before it.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-meshlet/engine/renderer/queue"
)

// ErrKernelPanic is returned when a kernel panics inside a workgroup.
var ErrKernelPanic = errors.New("dispatcher: kernel panicked")

// tasksPerWorker is how many chunks a dispatch is split into per worker.
const tasksPerWorker = 4

// Kernel is the body of one workgroup.
type Kernel func(g Group)

// Group identifies one workgroup of a dispatch.
type Group struct {
	// ID is the workgroup id within the dispatch grid.
	ID [3]uint32
	// Linear is the flat workgroup index. For a remapped indirect dispatch it is the index
	// recovered from the 2D grid.
	Linear uint32
	// Size is the number of invocations in the workgroup.
	Size uint32
}

// GlobalID returns the flat global invocation id of a local invocation.
func (g Group) GlobalID(local uint32) uint32 {
	return g.Linear*g.Size + local
}

// Invocations runs fn once per local invocation index. Everything done by one call
// completes before the next call starts.
func (g Group) Invocations(fn func(local uint32)) {
	for i := uint32(0); i < g.Size; i++ {
		fn(i)
	}
}

// Dispatcher runs kernels over workgroup grids.
type Dispatcher interface {
	// Dispatch runs kernel for workgroups 0..groups-1 and blocks until all have finished.
	//
	// Parameters:
	//   - ctx: cancels workgroups that have not started yet
	//   - label: names the dispatch in logs and errors
	//   - groups: the workgroup count
	//   - size: invocations per workgroup
	//   - kernel: the workgroup body
	//
	// Returns:
	//   - error: ctx.Err() on cancellation, or ErrKernelPanic
	Dispatch(ctx context.Context, label string, groups, size uint32, kernel Kernel) error

	// DispatchIndirect runs kernel over the grid stored in args. A grid folded into two
	// dimensions is unfolded back to linear ids and padding groups past the true count
	// are skipped.
	DispatchIndirect(ctx context.Context, label string, args *queue.DispatchArgs, size uint32, kernel Kernel) error

	// Workers returns the maximum number of workgroups running at once.
	Workers() int

	// Release stops the worker pool. The dispatcher must not be used afterward.
	Release()
}

type dispatcher struct {
	pool    worker.DynamicWorkerPool
	workers int
	taskID  atomic.Int64
}

var _ Dispatcher = &dispatcher{}

// NewDispatcher starts a worker pool with the given number of workers.
// A value <= 0 uses runtime.GOMAXPROCS.
func NewDispatcher(workers int) Dispatcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &dispatcher{
		pool:    worker.NewDynamicWorkerPool(workers, workers*tasksPerWorker, time.Second),
		workers: workers,
	}
}

func (d *dispatcher) Dispatch(ctx context.Context, label string, groups, size uint32, kernel Kernel) error {
	return d.run(ctx, label, groups, func(linear uint32) Group {
		return Group{ID: [3]uint32{linear, 0, 0}, Linear: linear, Size: size}
	}, kernel)
}

func (d *dispatcher) DispatchIndirect(ctx context.Context, label string, args *queue.DispatchArgs, size uint32, kernel Kernel) error {
	x, y, _ := args.Grid()
	count := args.Count()
	if x == 0 || y == 0 {
		return ctx.Err()
	}
	// iterate the full 2D grid and let the linear recovery drop padding
	return d.run(ctx, label, x*y, func(flat uint32) Group {
		gx, gy := flat%x, flat/x
		return Group{ID: [3]uint32{gx, gy, 0}, Linear: queue.LinearGroup(gx, gy, x), Size: size}
	}, func(g Group) {
		if g.Linear >= count {
			return
		}
		kernel(g)
	})
}

func (d *dispatcher) Workers() int {
	return d.workers
}

func (d *dispatcher) Release() {
	d.pool.Stop()
}

// run splits groups into chunks, submits one task per chunk and waits on a WaitGroup.
// pool.Wait() is not used since it waits for workers to idle out rather than for a batch.
func (d *dispatcher) run(ctx context.Context, label string, groups uint32, group func(uint32) Group, kernel Kernel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if groups == 0 {
		return nil
	}

	chunks := uint32(d.workers * tasksPerWorker)
	chunkSize := max((groups+chunks-1)/chunks, 1)

	var (
		wg       sync.WaitGroup
		panicked atomic.Pointer[string]
	)
	for start := uint32(0); start < groups; start += chunkSize {
		end := min(start+chunkSize, groups)
		wg.Add(1)
		d.pool.SubmitTask(worker.Task{
			ID: int(d.taskID.Add(1)),
			Do: func() (any, error) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						msg := fmt.Sprint(r)
						panicked.CompareAndSwap(nil, &msg)
					}
				}()
				for i := start; i < end; i++ {
					if ctx.Err() != nil || panicked.Load() != nil {
						return nil, nil
					}
					kernel(group(i))
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	if msg := panicked.Load(); msg != nil {
		return fmt.Errorf("%w: %s: %s", ErrKernelPanic, label, *msg)
	}
	return ctx.Err()
}
