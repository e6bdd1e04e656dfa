// Package api define types and interfaces common to the allocator engine
// and the tools built on top of it.
package api

import "unsafe"

// Allocator interface exported by a per-thread allocation context.
// An Allocator is not safe for concurrent use, each goroutine that
// allocates shall hold its own instance.
type Allocator interface {
	// Malloc allocate `size` bytes. Return nil for zero size or when
	// memory is exhausted. Returned pointer is always 16-byte aligned.
	Malloc(size int64) unsafe.Pointer

	// Calloc allocate `n*size` bytes and zero fill them.
	Calloc(n, size int64) unsafe.Pointer

	// Realloc grow the memory block pointed by ptr to `size` bytes. If
	// the existing block is large enough ptr is returned as is.
	Realloc(ptr unsafe.Pointer, size int64) unsafe.Pointer

	// Free memory block back to allocator, nil ptr is a no-op.
	Free(ptr unsafe.Pointer)

	// Close this context, memory held by the context is handed over
	// to the process. Memory allocated via this context remain valid.
	Close()
}
