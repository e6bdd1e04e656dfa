package malloc

import "fmt"
import "sync"

// CommonPool hold chunks handed over by threads, one free-list set per
// core, each behind its own mutex.
type CommonPool struct {
	cores int
	sizes *SizeClasses
	mus   []sync.Mutex
	pools []*FreeListSet
}

// NewCommonPool create an empty pool for `cores`.
func NewCommonPool(cores int, sizes *SizeClasses) *CommonPool {
	pool := &CommonPool{
		cores: cores,
		sizes: sizes,
		mus:   make([]sync.Mutex, cores),
		pools: make([]*FreeListSet, cores),
	}
	for i := range pool.pools {
		pool.pools[i] = &FreeListSet{}
	}
	return pool
}

// Refill move upto a batch of chunks for `size` from core's pool into
// `fl`, then pop one of them for the caller. Return nil if core's pool
// has no chunk of that size class.
func (pool *CommonPool) Refill(fl *FreeListSet, core int, size int64) *chunk {
	index := Sizeclass(size)
	batch := pool.sizes.BatchSize(index)

	pool.mus[core].Lock()
	head, tail, n := pool.pools[core].PopN(index, batch)
	pool.mus[core].Unlock()

	if head == nil {
		return nil
	}
	fl.Append(index, head, tail, n)
	debugf("refilled %v chunks of class %v from core %v pool\n", n, index, core)
	return fl.Pop(index)
}

// Return every list in `fl` to core's pool, `fl` is left empty.
func (pool *CommonPool) Return(fl *FreeListSet, core int) {
	pool.mus[core].Lock()
	pool.pools[core].Join(fl)
	pool.mus[core].Unlock()
}

// Count number of chunks held for `core`.
func (pool *CommonPool) Count(core int) int64 {
	pool.mus[core].Lock()
	defer pool.mus[core].Unlock()
	return pool.pools[core].Length()
}

// Validate free-lists held for every core.
func (pool *CommonPool) Validate() error {
	for core := range pool.pools {
		pool.mus[core].Lock()
		err := pool.pools[core].Validate(pool.cores)
		pool.mus[core].Unlock()
		if err != nil {
			return fmt.Errorf("pool core %v: %w", core, err)
		}
	}
	return nil
}

// Stats return chunks held per core.
func (pool *CommonPool) Stats() map[string]interface{} {
	stats := make(map[string]interface{})
	total := int64(0)
	for core := range pool.pools {
		n := pool.Count(core)
		stats[fmt.Sprintf("core%v", core)] = n
		total += n
	}
	stats["chunks"] = total
	return stats
}
