package malloc

import "math"
import "runtime"
import "unsafe"

import "github.com/bnclabs/shardmalloc/api"
import "github.com/bnclabs/shardmalloc/lib"

// Thread context for allocation. A thread context shall be used by one
// goroutine at a time. Local manager is acquired on first allocation
// and released on Close.
type Thread struct {
	proc   *Process
	lm     *LocalManager
	core   int // -1 picks a core when binding
	main   bool
	locked bool // goroutine locked to OS thread for affinity

	nfrees     int64 // since last flush
	nops       int64
	classfrees [Numclasses]int64

	// stats
	n_mallocs  int64
	n_frees    int64
	n_reallocs int64
	n_callocs  int64
	n_flushes  int64
	h_sizes    *lib.HistogramLog2
	a_sizes    *lib.AverageInt64
}

var _ api.Allocator = (*Thread)(nil)

func newthread(proc *Process, core int, main bool) *Thread {
	return &Thread{
		proc:    proc,
		core:    core,
		main:    main,
		h_sizes: lib.NewhistogramLog2(),
		a_sizes: &lib.AverageInt64{},
	}
}

// bind is ThreadInit.
func (t *Thread) bind() *LocalManager {
	if t.lm != nil {
		return t.lm
	}
	proc := t.proc
	proc.init()
	core := t.core
	if core < 0 {
		if proc.affinity {
			t.locked = true
		}
		core = proc.pickcore()
	}
	t.lm = proc.global.Acquire(core)
	if t.main {
		t.lm.slot = proc.arena.Mainslot()
	}
	debugf("thread bound to manager %v on core %v\n", t.lm.id, core)
	return t.lm
}

// Core return the core this thread is bound to, -1 if not yet bound.
func (t *Thread) Core() int {
	if t.lm == nil {
		return -1
	}
	return t.lm.core
}

// Malloc implement api.Allocator interface.
func (t *Thread) Malloc(size int64) unsafe.Pointer {
	if size <= 0 {
		return nil
	}
	lm := t.bind()
	ptr, err := lm.Allocate(size)
	t.n_mallocs++
	t.h_sizes.Add(size)
	t.a_sizes.Add(size)
	t.tick()
	if err != nil {
		debugf("malloc %v bytes on core %v: %v\n", size, lm.core, err)
		return nil
	}
	return ptr
}

// Free implement api.Allocator interface.
func (t *Thread) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	if t.lm == nil {
		t.proc.init()
		t.proc.global.FreeWithoutManager(ptr)
		t.n_frees++
		return
	}
	index, _ := t.lm.Free(ptr)
	t.n_frees++
	t.countfree(index)
	t.tick()
}

// countfree drive the flush cadence for every chunk released by this
// thread, including the old chunk of a moving realloc.
func (t *Thread) countfree(index int) {
	t.nfrees++
	t.classfrees[index]++
	if t.nfrees >= t.proc.flushinterval {
		t.flush()
	} else if t.classfrees[index] > t.proc.sizes.BatchSize(index) {
		t.flush()
	}
}

// Realloc implement api.Allocator interface.
func (t *Thread) Realloc(ptr unsafe.Pointer, size int64) unsafe.Pointer {
	if ptr == nil {
		return t.Malloc(size)
	} else if size <= 0 {
		t.Free(ptr)
		return nil
	}
	lm := t.bind()
	index := Sizeclass(headerof(ptr, lm.cores).size)
	newptr, err := lm.Realloc(ptr, size)
	t.n_reallocs++
	if err != nil {
		t.tick()
		debugf("realloc %v bytes on core %v: %v\n", size, lm.core, err)
		return nil
	} else if newptr != ptr {
		t.countfree(index)
	}
	t.tick()
	return newptr
}

// Calloc implement api.Allocator interface.
func (t *Thread) Calloc(n, size int64) unsafe.Pointer {
	if n <= 0 || size <= 0 || n > math.MaxInt64/size {
		return nil
	}
	total := n * size
	ptr := t.Malloc(total)
	if ptr == nil {
		return nil
	}
	t.n_callocs++
	lib.Memset(ptr, 0, int(total))
	return ptr
}

// Flush memory freed on behalf of other cores to common pool.
func (t *Thread) Flush() {
	if t.lm != nil {
		t.flush()
	}
}

func (t *Thread) flush() {
	n := t.lm.FlushRemoteFrees()
	t.nfrees = 0
	t.classfrees = [Numclasses]int64{}
	t.n_flushes++
	if n > 0 {
		debugf("thread on core %v flushed %v chunks\n", t.lm.core, n)
	}
}

func (t *Thread) tick() {
	t.nops++
	if iv := t.proc.loginterval; iv > 0 && t.nops%iv == 0 {
		fmsg := "thread on core %v: #malloc %v #free %v #realloc %v #flush %v\n"
		verbosef(fmsg, t.Core(), t.n_mallocs, t.n_frees, t.n_reallocs, t.n_flushes)
	}
}

// Close is ThreadShutdown, local manager is released back to the
// process. Memory allocated via this thread remain valid and can be
// freed by any thread. Thread can be used again after Close.
func (t *Thread) Close() {
	t.release()
	t.proc.mergethread(t)
	t.resetstats()
}

func (t *Thread) release() {
	if t.lm != nil {
		t.proc.global.Release(t.lm)
		t.lm = nil
	}
	if t.locked {
		runtime.UnlockOSThread()
		t.locked = false
	}
}

func (t *Thread) resetstats() {
	t.h_sizes, t.a_sizes = lib.NewhistogramLog2(), &lib.AverageInt64{}
	t.n_flushes, t.nfrees = 0, 0
	t.classfrees = [Numclasses]int64{}
}

// Stats return counters for this thread.
func (t *Thread) Stats() map[string]interface{} {
	return map[string]interface{}{
		"core":       t.Core(),
		"n_mallocs":  t.n_mallocs,
		"n_frees":    t.n_frees,
		"n_reallocs": t.n_reallocs,
		"n_callocs":  t.n_callocs,
		"n_flushes":  t.n_flushes,
		"h_sizes":    t.h_sizes.Fullstats(),
		"a_sizes":    t.a_sizes.Stats(),
	}
}
