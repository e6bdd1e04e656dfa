package api

import "unsafe"

// Mallocer interface for process wide memory management.
type Mallocer interface {
	// Alloc allocate a chunk of `n` bytes. Allocated memory is always
	// 16-byte aligned.
	Alloc(n int64) unsafe.Pointer

	// Chunklen return the length of the chunk usable by application.
	Chunklen(ptr unsafe.Pointer) int64

	// Free chunk back to the allocator.
	Free(ptr unsafe.Pointer)

	// Release the allocator. Arena memory is given back to OS only
	// when the process exits.
	Release()

	// Info of memory accounting for this allocator.
	Info() (capacity, heap, alloc, overhead int64)

	// Utilization map of arena-slot and its utilization.
	Utilization() ([]int, []float64)
}
