package malloc

import "fmt"
import "sync"
import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/shardmalloc/api"
import "github.com/bnclabs/shardmalloc/lib"

// LocalManager allocation front-end bound to one core. Its malloc
// list is touched only by the thread that checked it out, or by the
// global manager while it is idle. Its free lists receive chunks from
// the owning thread and, during release of another manager, from the
// global manager, hence they are guarded by `mu`.
type LocalManager struct {
	// stats, accessed atomically
	n_mallocs    int64
	n_frees      int64
	n_mints      int64
	n_minted     int64
	n_refills    int64
	n_swaps      int64
	n_flushes    int64
	n_oom        int64
	n_acquired   int64
	n_allocbytes int64
	n_freebytes  int64

	id     int
	core   int
	slot   int // arena slot to mint from
	cores  int
	malloc *FreeListSet
	mu     sync.Mutex
	frees  []*FreeListSet // indexed by owning core
	pool   *CommonPool
	arena  *Arena
	sizes  *SizeClasses
}

// NewLocalManager create a manager for `core`, minting from the core's
// arena slot.
func NewLocalManager(
	id, core int, arena *Arena, pool *CommonPool,
	sizes *SizeClasses) *LocalManager {

	lm := &LocalManager{
		id: id, core: core, slot: core, cores: arena.cores,
		malloc: &FreeListSet{},
		frees:  make([]*FreeListSet, arena.cores),
		pool:   pool, arena: arena, sizes: sizes,
	}
	for i := range lm.frees {
		lm.frees[i] = &FreeListSet{}
	}
	return lm
}

// Core this manager is bound to.
func (lm *LocalManager) Core() int {
	return lm.core
}

// ID of this manager in global manager's pool.
func (lm *LocalManager) ID() int {
	return lm.id
}

// Allocate a chunk of atleast `size` bytes. Try own list, then reclaim
// chunks freed for own core, then refill from common pool and finally
// mint a fresh batch from arena.
func (lm *LocalManager) Allocate(size int64) (unsafe.Pointer, error) {
	index := Sizeclass(size)
	if c := lm.malloc.Pop(index); c != nil {
		return lm.handout(c), nil
	}

	// same-core reclaim.
	lm.mu.Lock()
	if lm.frees[lm.core].Count(index) > 0 {
		lm.malloc.Swap(lm.frees[lm.core], index)
		atomic.AddInt64(&lm.n_swaps, 1)
	}
	lm.mu.Unlock()
	if c := lm.malloc.Pop(index); c != nil {
		return lm.handout(c), nil
	}

	if c := lm.pool.Refill(lm.malloc, lm.core, size); c != nil {
		atomic.AddInt64(&lm.n_refills, 1)
		return lm.handout(c), nil
	}

	n := lm.sizes.BatchSize(index)
	_, head, tail, err := Mintchunks(lm.arena, lm.slot, lm.core, size, n)
	if err != nil {
		atomic.AddInt64(&lm.n_oom, 1)
		return nil, err
	}
	lm.malloc.Append(index, head, tail, n)
	atomic.AddInt64(&lm.n_mints, 1)
	atomic.AddInt64(&lm.n_minted, n)

	return lm.handout(lm.malloc.Pop(index)), nil
}

func (lm *LocalManager) handout(c *chunk) unsafe.Pointer {
	atomic.AddInt64(&lm.n_mallocs, 1)
	atomic.AddInt64(&lm.n_allocbytes, c.size)
	return c.bodyptr()
}

// Free chunk pointed by `ptr`. Chunk is parked in the free list of the
// core that minted it, irrespective of the core this manager is bound
// to. Return the chunk's size class and owning core.
func (lm *LocalManager) Free(ptr unsafe.Pointer) (index, core int) {
	c := headerof(ptr, lm.cores)
	if c.inlist() {
		panicerr(api.ErrorCorruption, "free %p: chunk already in a free list", ptr)
	}
	index, core = Sizeclass(c.size), int(c.core)

	lm.mu.Lock()
	lm.frees[core].Push(index, c)
	lm.mu.Unlock()

	atomic.AddInt64(&lm.n_frees, 1)
	atomic.AddInt64(&lm.n_freebytes, c.size)
	return index, core
}

// Realloc memory pointed by `ptr` to `size` bytes. On failure old
// memory is left intact.
func (lm *LocalManager) Realloc(ptr unsafe.Pointer, size int64) (unsafe.Pointer, error) {
	if ptr == nil {
		return lm.Allocate(size)
	}
	c := headerof(ptr, lm.cores)
	if size <= c.size {
		return ptr, nil
	}
	newptr, err := lm.Allocate(size)
	if err != nil {
		return nil, err
	}
	lib.Memcpy(newptr, ptr, int(minint64(c.size, size)))
	lm.Free(ptr)
	return newptr, nil
}

// FlushRemoteFrees hand over chunks freed on behalf of other cores to
// common pool.
func (lm *LocalManager) FlushRemoteFrees() (n int64) {
	lm.mu.Lock()
	for core, fl := range lm.frees {
		if core == lm.core || fl.Empty() {
			continue
		}
		n += fl.Length()
		lm.pool.Return(fl, core)
	}
	lm.mu.Unlock()
	atomic.AddInt64(&lm.n_flushes, 1)
	return n
}

// Join chunks freed by `other` on behalf of `core` into this
// manager's malloc list. This manager must be idle.
func (lm *LocalManager) Join(core int, other *LocalManager) {
	other.mu.Lock()
	lm.malloc.Join(other.frees[core])
	other.mu.Unlock()
}

// Joinfree chunks freed by `other` on behalf of `core` into this
// manager's free list for `core`. Used when this manager is checked
// out, its owning thread reclaims them by swap.
func (lm *LocalManager) Joinfree(core int, other *LocalManager) {
	other.mu.Lock()
	lm.mu.Lock()
	lm.frees[core].Join(other.frees[core])
	lm.mu.Unlock()
	other.mu.Unlock()
}

// Pending number of chunks parked in free lists.
func (lm *LocalManager) Pending() (n int64) {
	lm.mu.Lock()
	for _, fl := range lm.frees {
		n += fl.Length()
	}
	lm.mu.Unlock()
	return n
}

// Available number of chunks in malloc list, only meaningful from the
// owning thread or while idle.
func (lm *LocalManager) Available() int64 {
	return lm.malloc.Length()
}

// Validate malloc list and free lists of this manager.
func (lm *LocalManager) Validate() error {
	if err := lm.malloc.Validate(lm.cores); err != nil {
		return fmt.Errorf("manager %v malloc: %w", lm.id, err)
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for core, fl := range lm.frees {
		if err := fl.Validate(lm.cores); err != nil {
			return fmt.Errorf("manager %v frees %v: %w", lm.id, core, err)
		}
	}
	return nil
}

// Stats return allocation counters for this manager.
func (lm *LocalManager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"n_mallocs":    atomic.LoadInt64(&lm.n_mallocs),
		"n_frees":      atomic.LoadInt64(&lm.n_frees),
		"n_mints":      atomic.LoadInt64(&lm.n_mints),
		"n_minted":     atomic.LoadInt64(&lm.n_minted),
		"n_refills":    atomic.LoadInt64(&lm.n_refills),
		"n_swaps":      atomic.LoadInt64(&lm.n_swaps),
		"n_flushes":    atomic.LoadInt64(&lm.n_flushes),
		"n_oom":        atomic.LoadInt64(&lm.n_oom),
		"n_acquired":   atomic.LoadInt64(&lm.n_acquired),
		"n_allocbytes": atomic.LoadInt64(&lm.n_allocbytes),
		"n_freebytes":  atomic.LoadInt64(&lm.n_freebytes),
	}
}
