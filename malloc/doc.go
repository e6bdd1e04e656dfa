// Package malloc supplies an off-heap memory allocator sharded per CPU
// core, with a limited scope:
//
//  * Memory is taken from anonymous mmap regions, one region per core
//    and one for the main thread, and bump allocated in batches.
//  * Allocations are served from power-of-two size classes. Each chunk
//    carries a header, with signature, owning core and size, right
//    before the memory handed to the application.
//  * Once a region is mapped from OS it is not given back to OS. Chunks
//    are recycled between free lists until the process is shutdown.
//  * Memory-chunks allocated by this package will always be 16-byte
//    aligned.
//
// Process is the process wide context, it owns the arena, the common
// pool and the global manager, and is constructed lazily on first use.
// Thread is a per goroutine context, it checks out a local manager
// from the process on its first allocation and hands it back on Close.
// A Thread instance is not safe for concurrent use.
//
// Allocation flows from the thread's own free list to same-core
// reclaim, then to the common pool and finally to the arena. Free is
// resolved locally by looking at the chunk header, memory freed on
// behalf of other cores is parked and periodically flushed to the
// common pool.
package malloc
