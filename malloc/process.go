package malloc

import "fmt"
import "sync"
import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/shardmalloc/api"
import "github.com/bnclabs/shardmalloc/lib"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

// Process context for the allocator. Size-class table, arena, common
// pool and global manager are built once, on first use, and torn down
// once by Shutdown.
type Process struct {
	n_threads int64
	rrcore    uint64

	once  sync.Once
	shut  sync.Once
	setts s.Settings

	// settings
	cores         int
	pagesize      int64
	extend        bool
	mainbudget    int64
	corebudget    int64
	extendmax     int64
	slotspercore  int
	sizefile      string
	flushinterval int64
	affinity      bool
	loginterval   int64

	sizes  *SizeClasses
	arena  *Arena
	pool   *CommonPool
	global *GlobalManager

	mu         sync.Mutex
	mainthread *Thread
	deflt      *Thread
	h_sizes    *lib.HistogramLog2 // from closed threads
	a_sizes    *lib.AverageInt64  // from closed threads
	n_flushes  int64              // from closed threads
}

// NewProcess create a process context, `setts` are mixed over
// Defaultsettings(). Allocator engine is not built until first use.
func NewProcess(setts s.Settings) *Process {
	proc := &Process{
		h_sizes: lib.NewhistogramLog2(),
		a_sizes: &lib.AverageInt64{},
	}
	proc.setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	if _, ok := setts["arena.coremb"]; !ok {
		proc.setts["arena.coremb"] = 4 * proc.setts.Int64("cores")
	}
	return proc
}

func (proc *Process) readsettings(setts s.Settings) {
	proc.cores = int(setts.Int64("cores"))
	proc.pagesize = setts.Int64("pagesize")
	proc.extend = setts.Bool("arena.extend")
	proc.mainbudget = setts.Int64("arena.mainmb") * Megabyte
	proc.corebudget = setts.Int64("arena.coremb") * Megabyte
	proc.extendmax = setts.Int64("arena.extendmax")
	proc.slotspercore = int(setts.Int64("pool.slotspercore"))
	proc.sizefile = setts.String("sizeclass.file")
	proc.flushinterval = setts.Int64("thread.flushinterval")
	proc.affinity = setts.Bool("thread.affinity")
	proc.loginterval = setts.Int64("log.interval")

	if proc.cores <= 0 {
		panicerr(api.ErrorConfiguration, "cores %v should be > 0", proc.cores)
	} else if proc.flushinterval <= 0 {
		fmsg := "thread.flushinterval %v should be > 0"
		panicerr(api.ErrorConfiguration, fmsg, proc.flushinterval)
	}
}

// init is ProcessInit, called exactly once.
func (proc *Process) init() {
	proc.once.Do(func() {
		proc.readsettings(proc.setts)

		budget := proc.mainbudget + proc.corebudget
		if _, _, free := getsysmem(); free > 0 && uint64(budget) > free {
			fmsg := "arena budget %v exceeds free memory %v\n"
			warnf(fmsg, humanize.Bytes(uint64(budget)), humanize.Bytes(free))
		}

		proc.sizes = NewSizeClasses(proc.sizefile)
		proc.arena = NewArena(
			proc.cores, proc.pagesize, proc.mainbudget, proc.corebudget,
			proc.extend, proc.extendmax)
		proc.pool = NewCommonPool(proc.cores, proc.sizes)
		proc.global = NewGlobalManager(
			proc.cores, proc.slotspercore, proc.arena, proc.pool, proc.sizes)
		proc.logsettings()
	})
}

func (proc *Process) logsettings() {
	infof("malloc process: cores %v pagesize %v slotspercore %v\n",
		proc.cores, proc.pagesize, proc.slotspercore)
	infof("malloc process: main arena %v core arena %v extend %v\n",
		humanize.Bytes(uint64(proc.mainbudget)),
		humanize.Bytes(uint64(proc.corebudget)), proc.extend)
	infof("malloc process: size classes from %v, flushinterval %v\n",
		proc.sizes.Source(), proc.flushinterval)
}

// Shutdown is ProcessShutdown, arena bookkeeping is terminated and no
// more memory can be minted. Memory already handed out stay valid.
func (proc *Process) Shutdown() {
	proc.shut.Do(func() {
		proc.init()
		proc.mu.Lock()
		defer proc.mu.Unlock()
		if deflt := proc.deflt; deflt != nil {
			deflt.release()
			proc.mergelocked(deflt)
			deflt.resetstats()
		}
		proc.arena.Term()
		infof("malloc process: shutdown\n")
	})
}

// Thread create a new thread context. Its local manager is bound on
// first allocation, to a core picked automatically.
func (proc *Process) Thread() *Thread {
	atomic.AddInt64(&proc.n_threads, 1)
	return newthread(proc, -1, false)
}

// ThreadOn create a new thread context bound to `core`.
func (proc *Process) ThreadOn(core int) *Thread {
	atomic.AddInt64(&proc.n_threads, 1)
	return newthread(proc, core, false)
}

// Mainthread return the thread context that mints from the main arena
// slot. There is only one main thread per process.
func (proc *Process) Mainthread() *Thread {
	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.mainthread == nil {
		atomic.AddInt64(&proc.n_threads, 1)
		proc.mainthread = newthread(proc, -1, true)
	}
	return proc.mainthread
}

func (proc *Process) pickcore() int {
	if proc.affinity {
		if core, ok := affinitycore(proc.cores); ok {
			return core
		}
	}
	n := atomic.AddUint64(&proc.rrcore, 1) - 1
	return int(n % uint64(proc.cores))
}

// Sizeclasses return the size-class table.
func (proc *Process) Sizeclasses() *SizeClasses {
	proc.init()
	return proc.sizes
}

// Cores return number of cores allocator state is sharded on.
func (proc *Process) Cores() int {
	proc.init()
	return proc.cores
}

func (proc *Process) mergethread(t *Thread) {
	proc.mu.Lock()
	defer proc.mu.Unlock()
	proc.mergelocked(t)
}

// mergelocked shall be called with proc.mu held.
func (proc *Process) mergelocked(t *Thread) {
	proc.h_sizes.Merge(t.h_sizes)
	proc.a_sizes.Merge(t.a_sizes)
	proc.n_flushes += t.n_flushes
}

func (proc *Process) defaultthread() *Thread {
	if proc.deflt == nil {
		proc.deflt = proc.Thread()
	}
	return proc.deflt
}

//---- api.Mallocer{} interface.

// Alloc implement api.Mallocer{} interface, through a process wide
// thread context serialized by a mutex.
func (proc *Process) Alloc(n int64) unsafe.Pointer {
	proc.mu.Lock()
	defer proc.mu.Unlock()
	return proc.defaultthread().Malloc(n)
}

// Chunklen implement api.Mallocer{} interface.
func (proc *Process) Chunklen(ptr unsafe.Pointer) int64 {
	proc.init()
	return headerof(ptr, proc.cores).size
}

// Free implement api.Mallocer{} interface.
func (proc *Process) Free(ptr unsafe.Pointer) {
	proc.mu.Lock()
	defer proc.mu.Unlock()
	proc.defaultthread().Free(ptr)
}

// Release implement api.Mallocer{} interface.
func (proc *Process) Release() {
	proc.Shutdown()
}

// Info implement api.Mallocer{} interface. `capacity` is memory mapped
// from OS, `heap` is memory minted into chunks, `alloc` is chunk
// memory currently held by application and `overhead` is minted
// memory not held by application, headers included.
func (proc *Process) Info() (capacity, heap, alloc, overhead int64) {
	proc.init()
	capacity, heap = proc.arena.Memory()
	for _, lm := range proc.global.Managers() {
		alloc += atomic.LoadInt64(&lm.n_allocbytes)
		alloc -= atomic.LoadInt64(&lm.n_freebytes)
	}
	return capacity, heap, alloc, heap - alloc
}

// Utilization implement api.Mallocer{} interface.
func (proc *Process) Utilization() ([]int, []float64) {
	proc.init()
	return proc.arena.Utilization()
}

// Stats return allocator statistics.
func (proc *Process) Stats() map[string]interface{} {
	proc.init()
	capacity, heap, alloc, overhead := proc.Info()
	stats := map[string]interface{}{
		"cores":     proc.cores,
		"threads":   atomic.LoadInt64(&proc.n_threads),
		"capacity":  capacity,
		"heap":      heap,
		"alloc":     alloc,
		"overhead":  overhead,
		"arena":     proc.arena.Stats(),
		"pool":      proc.pool.Stats(),
		"managers":  proc.global.Stats(),
		"sizeclass": proc.sizes.Source(),
	}
	proc.mu.Lock()
	stats["n_threadflushes"] = proc.n_flushes
	stats["h_sizes"] = proc.h_sizes.Fullstats()
	stats["a_sizes"] = proc.a_sizes.Stats()
	proc.mu.Unlock()
	return stats
}

// Log allocator statistics.
func (proc *Process) Log() {
	capacity, heap, alloc, overhead := proc.Info()
	fmsg := "malloc process: capacity %v heap %v alloc %v overhead %v\n"
	infof(fmsg, humanize.Bytes(uint64(capacity)), humanize.Bytes(uint64(heap)),
		humanize.Bytes(uint64(alloc)), humanize.Bytes(uint64(overhead)))
	slots, utilz := proc.Utilization()
	for i, slot := range slots {
		infof("malloc process: arena slot %v utilization %.2f%%\n", slot, utilz[i])
	}
	infof("malloc process: stats %v\n", lib.Prettystats(proc.Stats(), false))
}

// Validate every free list held by the allocator. Threads shall not be
// allocating or freeing while validating.
func (proc *Process) Validate() error {
	proc.init()
	if err := proc.pool.Validate(); err != nil {
		return err
	}
	for _, lm := range proc.global.Managers() {
		if err := lm.Validate(); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
	}
	return nil
}
