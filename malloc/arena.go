package malloc

import "fmt"
import "sync"
import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/shardmalloc/api"
import humanize "github.com/dustin/go-humanize"

// Arena reserve memory from OS, one slot per core and one slot for the
// main thread. Each slot is a bump allocator over its active segment.
// Memory handed out by arena is never given back to the OS while the
// process is alive.
type Arena struct {
	cores     int
	pagesize  int64
	extend    bool
	extendmax int64
	slots     []*arenaslot
	termed    int64 // atomic, 1 once terminated
}

type arenaslot struct {
	mu       sync.Mutex
	touched  bool
	base     uintptr // active segment
	capacity int64   // size of active segment
	offset   int64   // bump offset in active segment
	segments [][]byte
	mapped   int64
	used     int64
}

// NewArena reserve `corebudget` bytes, divided equally across `cores`
// slots, and `mainbudget` bytes for the main slot. Total cannot exceed
// Maxarenasize.
func NewArena(
	cores int, pagesize, mainbudget, corebudget int64,
	extend bool, extendmax int64) *Arena {

	if cores <= 0 {
		panicerr(api.ErrorConfiguration, "cores %v should be > 0", cores)
	} else if pagesize <= 0 || pagesize&(pagesize-1) != 0 {
		panicerr(api.ErrorConfiguration, "pagesize %v not power of 2", pagesize)
	} else if total := mainbudget + corebudget; total > Maxarenasize {
		fmsg := "arena budget %v exceeds %v"
		panicerr(api.ErrorConfiguration, fmsg, total, Maxarenasize)
	} else if extendmax <= 0 {
		extendmax = Extendmax
	}

	arena := &Arena{
		cores: cores, pagesize: pagesize,
		extend: extend, extendmax: extendmax,
		slots: make([]*arenaslot, cores+1),
	}
	coresize := api.Align(corebudget/int64(cores), pagesize)
	coresize = maxint64(coresize, pagesize)
	mainsize := maxint64(api.Align(mainbudget, pagesize), pagesize)
	for i := range arena.slots {
		size := coresize
		if i == cores {
			size = mainsize
		}
		slot := &arenaslot{}
		if err := slot.mapsegment(size); err != nil {
			arena.Release()
			panicerr(api.ErrorOutofMemory, "arena slot %v: %v", i, err)
		}
		arena.slots[i] = slot
	}
	fmsg := "arena initialized with %v slots of %v and main slot of %v\n"
	infof(fmsg, cores, humanize.Bytes(uint64(coresize)),
		humanize.Bytes(uint64(mainsize)))
	return arena
}

// Mainslot return the slot index reserved for the main thread.
func (arena *Arena) Mainslot() int {
	return arena.cores
}

// Allocate `size` bytes from arena `slot`. `size` must be a multiple
// of pagesize. Return api.ErrorOutofMemory when the slot is exhausted
// and extension is disabled.
func (arena *Arena) Allocate(slot int, size int64) (uintptr, error) {
	if atomic.LoadInt64(&arena.termed) == 1 {
		panicerr(api.ErrorConfiguration, "arena terminated")
	} else if slot < 0 || slot >= len(arena.slots) {
		panicerr(api.ErrorConfiguration, "arena slot %v out of range", slot)
	}

	s := arena.slots[slot]
	s.mu.Lock()
	defer s.mu.Unlock()

	if atomic.LoadInt64(&arena.termed) == 1 { // released while waiting.
		panicerr(api.ErrorConfiguration, "arena terminated")
	}
	if !s.touched {
		s.touch(arena.pagesize)
		s.touched = true
	}
	if s.offset+size > s.capacity {
		if !arena.extend {
			return 0, api.ErrorOutofMemory
		} else if int64(len(s.segments)) >= arena.extendmax {
			fmsg := "arena slot %v exceeds %v segments"
			panicerr(api.ErrorOutofMemory, fmsg, slot, arena.extendmax)
		}
		segsize := api.Align(maxint64(size, Extendminimum), arena.pagesize)
		if err := s.mapsegment(segsize); err != nil {
			errorf("arena slot %v extend %v: %v\n", slot, segsize, err)
			return 0, api.ErrorOutofMemory
		}
		fmsg := "arena slot %v extended by %v, mapped %v in %v segments\n"
		infof(fmsg, slot, humanize.Bytes(uint64(segsize)),
			humanize.Bytes(uint64(s.mapped)), len(s.segments))
	}
	ptr := s.base + uintptr(s.offset)
	s.offset += size
	s.used += size
	return ptr, nil
}

// Term the arena, bookkeeping is kept so that memory already handed
// out stay valid, but no more allocations are allowed.
func (arena *Arena) Term() {
	atomic.StoreInt64(&arena.termed, 1)
}

// Release unmap every segment. Pointers handed out by this arena
// become invalid.
func (arena *Arena) Release() {
	atomic.StoreInt64(&arena.termed, 1)
	for i, s := range arena.slots {
		if s == nil {
			continue
		}
		s.mu.Lock()
		for _, segment := range s.segments {
			if err := unmap(segment); err != nil {
				errorf("arena slot %v unmap: %v\n", i, err)
			}
		}
		s.segments, s.base, s.capacity, s.offset = nil, 0, 0, 0
		s.mu.Unlock()
	}
}

// Memory return the bytes mapped from OS and the bytes handed out.
func (arena *Arena) Memory() (mapped, used int64) {
	for _, s := range arena.slots {
		s.mu.Lock()
		mapped, used = mapped+s.mapped, used+s.used
		s.mu.Unlock()
	}
	return mapped, used
}

// Utilization return slot indices and percentage of mapped memory
// handed out from each slot.
func (arena *Arena) Utilization() ([]int, []float64) {
	slots := make([]int, 0, len(arena.slots))
	utilz := make([]float64, 0, len(arena.slots))
	for i, s := range arena.slots {
		s.mu.Lock()
		slots = append(slots, i)
		utilz = append(utilz, float64(s.used)/float64(s.mapped)*100)
		s.mu.Unlock()
	}
	return slots, utilz
}

// Segments return the number of segments mapped for `slot`.
func (arena *Arena) Segments(slot int) int {
	s := arena.slots[slot]
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// Stats return per-slot accounting.
func (arena *Arena) Stats() map[string]interface{} {
	stats := make(map[string]interface{})
	for i, s := range arena.slots {
		s.mu.Lock()
		stats[fmt.Sprintf("slot%v", i)] = map[string]interface{}{
			"mapped":   s.mapped,
			"used":     s.used,
			"segments": len(s.segments),
		}
		s.mu.Unlock()
	}
	mapped, used := arena.Memory()
	stats["mapped"], stats["used"] = mapped, used
	return stats
}

func (s *arenaslot) mapsegment(size int64) error {
	segment, err := mapanon(size)
	if err != nil {
		return err
	}
	s.segments = append(s.segments, segment)
	s.base = uintptr(unsafe.Pointer(&segment[0]))
	s.capacity, s.offset = size, 0
	s.mapped += size
	return nil
}

// touch write one byte per page so that pages are backed close to
// the core that first uses the slot.
func (s *arenaslot) touch(pagesize int64) {
	for off := int64(0); off < s.capacity; off += pagesize {
		*(*byte)(unsafe.Pointer(s.base + uintptr(off))) = 0
	}
}
