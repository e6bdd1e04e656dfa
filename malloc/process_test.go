package malloc

import "os"
import "sort"
import "sync"
import "errors"
import "testing"
import "unsafe"
import "path/filepath"

import "github.com/bnclabs/shardmalloc/api"
import "github.com/bnclabs/shardmalloc/lib"
import s "github.com/bnclabs/gosettings"
import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func TestProcessSettings(t *testing.T) {
	proc := NewProcess(s.Settings{"cores": int64(3)})
	require.Equal(t, int64(12), proc.setts.Int64("arena.coremb"))
	require.Equal(t, true, proc.setts.Bool("arena.extend"))

	proc = NewProcess(s.Settings{"cores": int64(3), "arena.coremb": int64(6)})
	require.Equal(t, int64(6), proc.setts.Int64("arena.coremb"))
	require.Equal(t, 3, proc.Cores())
	require.Equal(t, "default", proc.Sizeclasses().Source())
	defer releaseproc(proc)

	proc = NewProcess(s.Settings{"cores": int64(0)})
	require.Panics(t, func() { proc.Cores() })
}

func TestMallocAlignment(t *testing.T) {
	proc := NewProcess(testsettings(2))
	defer releaseproc(proc)
	thread := proc.Thread()
	defer thread.Close()

	if ptr := thread.Malloc(0); ptr != nil {
		t.Errorf("expected nil, got %v", ptr)
	}
	thread.Free(nil)

	sizes := []int64{1, 3, 8, 9, 15, 16, 17, 24, 31, 33, 100, 1000, 4097}
	for i := 13; i <= 30; i++ {
		sizes = append(sizes, (int64(1)<<uint(i))-1, int64(1)<<uint(i))
	}
	for _, size := range sizes {
		ptr := thread.Malloc(size)
		if ptr == nil {
			t.Errorf("unexpected nil for %v", size)
			continue
		} else if !api.Aligned(uintptr(ptr), api.Alignment) {
			t.Errorf("%v not aligned for size %v", ptr, size)
		} else if x := proc.Chunklen(ptr); x < size {
			t.Errorf("expected atleast %v, got %v", size, x)
		}
		thread.Free(ptr)
	}
}

func TestMallocMisaligned(t *testing.T) {
	proc := NewProcess(testsettings(2))
	defer releaseproc(proc)
	thread := proc.Thread()
	defer thread.Close()

	ptr := thread.Malloc(64)
	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Errorf("expected panic")
			} else if !errors.Is(r.(error), api.ErrorCorruption) {
				t.Errorf("unexpected %v", r)
			}
		}()
		thread.Free(unsafe.Pointer(uintptr(ptr) + 8))
	}()
	thread.Free(ptr)
}

func TestDoubleFree(t *testing.T) {
	proc := NewProcess(testsettings(2))
	defer releaseproc(proc)
	thread := proc.Thread()
	defer thread.Close()

	a, b := thread.Malloc(64), thread.Malloc(64)
	thread.Free(a)
	thread.Free(b)
	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Errorf("expected panic")
			} else if !errors.Is(r.(error), api.ErrorCorruption) {
				t.Errorf("unexpected %v", r)
			}
		}()
		thread.Free(a)
	}()
	require.NoError(t, proc.Validate())
}

func TestCalloc(t *testing.T) {
	proc := NewProcess(testsettings(1))
	defer releaseproc(proc)
	thread := proc.Thread()
	defer thread.Close()

	// dirty a chunk and free it, calloc must hand it back zeroed.
	ptr := thread.Malloc(100000)
	lib.Memset(ptr, 0xaa, 100000)
	thread.Free(ptr)

	zptr := thread.Calloc(1000, 100)
	require.Equal(t, ptr, zptr)
	for i, b := range lib.Bytes(zptr, 100000) {
		if b != 0 {
			t.Fatalf("byte %v expected 0, got %v", i, b)
		}
	}
	thread.Free(zptr)

	require.Nil(t, thread.Calloc(0, 10))
	require.Nil(t, thread.Calloc(10, 0))
	require.Nil(t, thread.Calloc(1<<40, 1<<40))
}

func TestRealloc(t *testing.T) {
	proc := NewProcess(testsettings(1))
	defer releaseproc(proc)
	thread := proc.Thread()
	defer thread.Close()

	ptr := thread.Realloc(nil, 24)
	require.Equal(t, int64(32), proc.Chunklen(ptr))
	lib.Memset(ptr, 0x11, 32)
	require.Equal(t, ptr, thread.Realloc(ptr, 32))

	newptr := thread.Realloc(ptr, 1000)
	require.NotEqual(t, ptr, newptr)
	for _, b := range lib.Bytes(newptr, 32) {
		require.Equal(t, byte(0x11), b)
	}
	require.Nil(t, thread.Realloc(newptr, 0))
}

func TestReallocRemoteFlush(t *testing.T) {
	setts := testsettings(2)
	setts["thread.flushinterval"] = int64(1)
	proc := NewProcess(setts)
	defer releaseproc(proc)

	thread0, thread1 := proc.ThreadOn(0), proc.ThreadOn(1)
	defer thread0.Close()
	defer thread1.Close()

	ptr := thread0.Malloc(64)
	require.Equal(t, ptr, thread1.Realloc(ptr, 48))
	require.Equal(t, int64(0), thread1.Stats()["n_flushes"])

	newptr := thread1.Realloc(ptr, 1000)
	require.NotEqual(t, ptr, newptr)
	require.Equal(t, 1, Chunkcore(newptr))
	// old chunk belongs to core 0 and is flushed right away.
	require.Equal(t, int64(1), proc.pool.Count(0))
	require.Equal(t, int64(1), thread1.Stats()["n_flushes"])
	thread1.Free(newptr)
}

func TestRemoteFreeReuse(t *testing.T) {
	setts := testsettings(2)
	setts["thread.flushinterval"] = int64(1)
	proc := NewProcess(setts)
	defer releaseproc(proc)

	thread0, thread1 := proc.ThreadOn(0), proc.ThreadOn(1)
	defer thread0.Close()
	defer thread1.Close()

	// exhaust the first batch of 64B chunks on core 0.
	batch := proc.Sizeclasses().BatchSize(6)
	ptrs := make([]unsafe.Pointer, 0, batch)
	for i := int64(0); i < batch; i++ {
		ptrs = append(ptrs, thread0.Malloc(64))
	}
	require.Equal(t, 0, thread0.Core())
	require.Equal(t, int64(0), thread0.lm.Available())

	// core 1 frees it, with flushinterval 1 chunk goes to common pool.
	thread1.Malloc(8)
	thread1.Free(ptrs[0])
	require.Equal(t, int64(1), proc.pool.Count(0))

	ptr := thread0.Malloc(64)
	require.Equal(t, ptrs[0], ptr)
	stats := thread0.lm.Stats()
	require.Equal(t, int64(1), stats["n_mints"])
	require.Equal(t, int64(1), stats["n_refills"])
}

func TestFlushClassBatch(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "sizes.txt")
	require.NoError(t, os.WriteFile(filename, []byte("0\n0\n0\n2\n2\n2\n2\n"), 0644))

	setts := testsettings(2)
	setts["sizeclass.file"] = filename
	proc := NewProcess(setts)
	defer releaseproc(proc)

	thread0, thread1 := proc.ThreadOn(0), proc.ThreadOn(1)
	defer thread0.Close()
	defer thread1.Close()

	ptrs := []unsafe.Pointer{}
	for i := 0; i < 3; i++ {
		ptrs = append(ptrs, thread0.Malloc(64))
	}
	thread1.Malloc(8)
	thread1.Free(ptrs[0])
	thread1.Free(ptrs[1])
	require.Equal(t, int64(0), proc.pool.Count(0))
	// third free of class 6 exceeds its batch of 2.
	thread1.Free(ptrs[2])
	require.Equal(t, int64(3), proc.pool.Count(0))
	require.Equal(t, int64(1), thread1.Stats()["n_flushes"])
}

func TestScenarioBatch5(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "sizes.txt")
	text := "0\n0\n0\n1000\n2000\n2000\n5\n1000\n"
	require.NoError(t, os.WriteFile(filename, []byte(text), 0644))

	setts := testsettings(4)
	setts["sizeclass.file"] = filename
	proc := NewProcess(setts)
	defer releaseproc(proc)
	thread := proc.ThreadOn(0)
	defer thread.Close()

	for i := 0; i < 5; i++ {
		require.NotNil(t, thread.Malloc(60))
	}
	stats := thread.lm.Stats()
	require.Equal(t, int64(1), stats["n_mints"])
	require.Equal(t, int64(5), stats["n_minted"])

	// pool and arena batch exhausted for this class.
	require.NotNil(t, thread.Malloc(64))
	stats = thread.lm.Stats()
	require.Equal(t, int64(2), stats["n_mints"])
	require.Equal(t, int64(10), stats["n_minted"])
	require.Equal(t, int64(4), thread.lm.Available())
}

func TestScenarioSteadyState(t *testing.T) {
	proc := NewProcess(testsettings(4))
	defer releaseproc(proc)
	thread := proc.ThreadOn(0)
	defer thread.Close()

	ptrs := make([]unsafe.Pointer, 0, 1000)
	for i := 0; i < 1000; i++ {
		ptrs = append(ptrs, thread.Malloc(32))
	}
	mints := thread.lm.Stats()["n_mints"].(int64)
	for _, ptr := range ptrs {
		thread.Free(ptr)
	}
	for i := 0; i < 1000; i++ {
		require.NotNil(t, thread.Malloc(32))
	}
	if x := thread.lm.Stats()["n_mints"].(int64); x > mints+1 {
		t.Errorf("expected atmost %v, got %v", mints+1, x)
	}
}

func TestDisjoint(t *testing.T) {
	var wg sync.WaitGroup

	nthreads, n, size := 8, 5000, int64(48)
	setts := testsettings(4)
	proc := NewProcess(setts)
	defer releaseproc(proc)

	results := make([][]unsafe.Pointer, nthreads)
	for i := 0; i < nthreads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			thread := proc.Thread()
			defer thread.Close()
			for j := 0; j < n; j++ {
				results[i] = append(results[i], thread.Malloc(size))
			}
		}(i)
	}
	wg.Wait()

	addrs := make([]uintptr, 0, nthreads*n)
	for _, ptrs := range results {
		for _, ptr := range ptrs {
			require.NotNil(t, ptr)
			addrs = append(addrs, uintptr(ptr))
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	width := uintptr(api.Roundpow2(size))
	for i := 1; i < len(addrs); i++ {
		if addrs[i-1]+width > addrs[i] {
			t.Fatalf("%x overlaps %x", addrs[i-1], addrs[i])
		}
	}
	require.NoError(t, proc.Validate())
}

func TestMallocer(t *testing.T) {
	var mallocer api.Mallocer = NewProcess(testsettings(2))
	proc := mallocer.(*Process)
	defer releaseproc(proc)

	ptr := mallocer.Alloc(100)
	require.NotNil(t, ptr)
	require.Equal(t, int64(128), mallocer.Chunklen(ptr))

	capacity, heap, alloc, overhead := mallocer.Info()
	assert.Equal(t, 5*Megabyte, capacity)
	assert.Equal(t, int64(128), alloc)
	assert.Equal(t, heap-alloc, overhead)
	assert.True(t, heap >= Stride(100)*proc.sizes.BatchSize(7))

	slots, utilz := mallocer.Utilization()
	assert.Equal(t, 3, len(slots))
	assert.Equal(t, 3, len(utilz))

	mallocer.Free(ptr)
	_, _, alloc, _ = mallocer.Info()
	assert.Equal(t, int64(0), alloc)

	stats := proc.Stats()
	assert.Equal(t, int64(1), stats["threads"])
	proc.Log()

	mallocer.Release()
	h := proc.Stats()["h_sizes"].(map[string]interface{})
	assert.Equal(t, int64(1), h["samples"])
	// no more minting after shutdown.
	require.Panics(t, func() { proc.Thread().Malloc(1 << 20) })
}

func TestMainthread(t *testing.T) {
	proc := NewProcess(testsettings(2))
	defer releaseproc(proc)

	mainth := proc.Mainthread()
	require.Equal(t, mainth, proc.Mainthread())
	require.Equal(t, -1, mainth.Core())
	ptr := mainth.Malloc(4096)
	require.NotNil(t, ptr)
	require.Equal(t, proc.arena.Mainslot(), mainth.lm.slot)
	stats := proc.arena.Stats()
	mainslot := stats["slot2"].(map[string]interface{})
	assert.True(t, mainslot["used"].(int64) > 0)
	core := mainth.Core()
	mainth.Close()

	// released manager mints from its core slot again.
	for i := 0; i < 3; i++ {
		thread := proc.ThreadOn(core)
		thread.Malloc(8)
		require.Equal(t, thread.lm.core, thread.lm.slot)
		defer thread.Close()
	}
	mainth.Free(ptr)
}

func BenchmarkThreadMallocFree(b *testing.B) {
	proc := NewProcess(testsettings(1))
	defer releaseproc(proc)
	thread := proc.Thread()
	defer thread.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		thread.Free(thread.Malloc(int64(i%512) + 1))
	}
}
