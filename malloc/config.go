package malloc

import "os"
import "runtime"

import s "github.com/bnclabs/gosettings"
import "github.com/cloudfoundry/gosigar"

// Megabyte unit used by arena budget settings.
const Megabyte = int64(1024 * 1024)

// Maxarenasize maximum memory, across all arena slots, that can be
// reserved at process init.
const Maxarenasize = int64(1024 * 1024 * 1024 * 1024) // 1TB

// Extendminimum minimum size of a segment mapped when an arena slot
// runs out of memory.
const Extendminimum = int64(1024*1024*1024) >> 4 // 64MB

// Extendmax default maximum number of segments per arena slot.
const Extendmax = int64(10000)

// Slotspercore default number of local managers per core.
const Slotspercore = int64(4)

// Flushinterval default number of frees after which a thread hands
// memory freed on behalf of other cores to the common pool.
const Flushinterval = int64(10000)

// Defaultsettings for malloc process.
//
// "cores" (int64, default: runtime.NumCPU())
//		Number of cores to shard allocator state.
//
// "pagesize" (int64, default: os.Getpagesize())
//		Page size, arena regions and batches are page aligned.
//
// "arena.extend" (bool, default: true)
//		Map new segments when an arena slot is exhausted. If false,
//		allocation fails with out of memory.
//
// "arena.mainmb" (int64, default: 32)
//		Arena budget, in MB, for the main thread.
//
// "arena.coremb" (int64, default: 4 * cores)
//		Arena budget, in MB, across all cores. Each core gets an
//		equal share.
//
// "arena.extendmax" (int64, default: 10000)
//		Maximum segments per arena slot, superseded segments are never
//		unmapped and this bounds the leak.
//
// "pool.slotspercore" (int64, default: 4)
//		Number of local managers per core. Threads bound to a core
//		beyond this number abort the process.
//
// "sizeclass.file" (string, default: "")
//		Newline delimited file of batch count per size class, indexed
//		by log2 of size. If empty, built in table is used.
//
// "thread.flushinterval" (int64, default: 10000)
//		Number of frees after which a thread flushes memory freed on
//		behalf of other cores to the common pool.
//
// "thread.affinity" (bool, default: false)
//		Lock the goroutine to its OS thread and pick the core from
//		scheduler affinity, when it names a single cpu.
//
// "log.interval" (int64, default: 10000)
//		Log allocation counters every log.interval operations on a
//		thread, 0 disables.
func Defaultsettings() s.Settings {
	cores := int64(runtime.NumCPU())
	return s.Settings{
		"cores":                cores,
		"pagesize":             int64(os.Getpagesize()),
		"arena.extend":         true,
		"arena.mainmb":         int64(32),
		"arena.coremb":         4 * cores,
		"arena.extendmax":      Extendmax,
		"pool.slotspercore":    Slotspercore,
		"sizeclass.file":       "",
		"thread.flushinterval": Flushinterval,
		"thread.affinity":      false,
		"log.interval":         int64(10000),
	}
}

func getsysmem() (total, used, free uint64) {
	mem := sigar.Mem{}
	mem.Get()
	return mem.Total, mem.Used, mem.Free
}
