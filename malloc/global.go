package malloc

import "sync"
import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/shardmalloc/api"

// GlobalManager pool of local managers, `slots` managers per core,
// checked out by threads and checked back in when they close.
type GlobalManager struct {
	n_releases int64
	n_joins    int64

	mu       sync.Mutex
	cores    int
	slots    int
	offset   []int // rotating acquire offset per core
	roffset  int   // rotating release offset
	inuse    []bool
	managers []*LocalManager // managers[core*slots+i]
}

// NewGlobalManager construct `cores * slots` local managers.
func NewGlobalManager(
	cores, slots int, arena *Arena, pool *CommonPool,
	sizes *SizeClasses) *GlobalManager {

	if slots <= 0 {
		panicerr(api.ErrorConfiguration, "pool.slotspercore %v should be > 0", slots)
	}
	gm := &GlobalManager{
		cores:    cores,
		slots:    slots,
		offset:   make([]int, cores),
		inuse:    make([]bool, cores*slots),
		managers: make([]*LocalManager, cores*slots),
	}
	for i := range gm.managers {
		gm.managers[i] = NewLocalManager(i, i/slots, arena, pool, sizes)
	}
	return gm
}

// Acquire an idle manager bound to `core`. Abort if all managers for
// `core` are checked out.
func (gm *GlobalManager) Acquire(core int) *LocalManager {
	if core < 0 || core >= gm.cores {
		panicerr(api.ErrorConfiguration, "acquire: core %v out of range", core)
	}

	gm.mu.Lock()
	defer gm.mu.Unlock()

	start := gm.offset[core]
	for i := 0; i < gm.slots; i++ {
		off := (start + i) % gm.slots
		idx := core*gm.slots + off
		if gm.inuse[idx] {
			continue
		}
		gm.inuse[idx] = true
		gm.offset[core] = (off + 1) % gm.slots
		lm := gm.managers[idx]
		atomic.AddInt64(&lm.n_acquired, 1)
		return lm
	}
	fmsg := "all %v managers for core %v in use, allocate more pool"
	panicerr(api.ErrorPoolExhausted, fmsg, gm.slots, core)
	return nil
}

// Release manager `lm` back to the pool. Chunks it holds on behalf of
// every core are handed over to other managers of that core, so that
// unflushed remote frees are not stranded.
func (gm *GlobalManager) Release(lm *LocalManager) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if lm == nil || lm.id < 0 || lm.id >= len(gm.managers) ||
		gm.managers[lm.id] != lm || !gm.inuse[lm.id] {

		panicerr(api.ErrorCorruption, "release: manager not checked out")
	}

	n := len(gm.managers)
	start := gm.roffset
	gm.roffset = (gm.roffset + 1) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if idx == lm.id {
			continue
		}
		target := gm.managers[idx]
		core := target.core
		if lm.frees[core].Empty() {
			continue
		}
		if gm.inuse[idx] {
			target.Joinfree(core, lm)
		} else {
			target.Join(core, lm)
		}
		atomic.AddInt64(&gm.n_joins, 1)
	}
	// with one slot per core nobody else can take own core's frees.
	lm.mu.Lock()
	lm.malloc.Join(lm.frees[lm.core])
	lm.mu.Unlock()

	lm.slot = lm.core
	gm.inuse[lm.id] = false
	atomic.AddInt64(&gm.n_releases, 1)
}

// FreeWithoutManager free `ptr` through a transiently acquired manager
// of the chunk's owning core.
func (gm *GlobalManager) FreeWithoutManager(ptr unsafe.Pointer) {
	c := headerof(ptr, gm.cores)
	lm := gm.Acquire(int(c.core))
	lm.Free(ptr)
	gm.Release(lm)
}

// Inuse number of managers checked out.
func (gm *GlobalManager) Inuse() (n int) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	for _, ok := range gm.inuse {
		if ok {
			n++
		}
	}
	return n
}

// Pending total chunks parked in every manager's free lists.
func (gm *GlobalManager) Pending() (n int64) {
	for _, lm := range gm.managers {
		n += lm.Pending()
	}
	return n
}

// Managers return the pool of local managers.
func (gm *GlobalManager) Managers() []*LocalManager {
	return gm.managers
}

// Stats return counters across all managers.
func (gm *GlobalManager) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"n_releases": atomic.LoadInt64(&gm.n_releases),
		"n_joins":    atomic.LoadInt64(&gm.n_joins),
		"n_inuse":    int64(gm.Inuse()),
		"n_pending":  gm.Pending(),
	}
	for _, lm := range gm.managers {
		for key, value := range lm.Stats() {
			if v, ok := stats[key].(int64); ok {
				stats[key] = v + value.(int64)
			} else {
				stats[key] = value
			}
		}
	}
	return stats
}
