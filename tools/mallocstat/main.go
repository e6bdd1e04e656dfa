package main

import "os"
import "fmt"
import "flag"
import "sync"
import "time"
import "runtime"
import "math/rand"
import "runtime/pprof"
import "unsafe"

import "github.com/bnclabs/shardmalloc/lib"
import "github.com/bnclabs/shardmalloc/malloc"
import "github.com/bnclabs/golog"
import s "github.com/bnclabs/gosettings"
import hm "github.com/dustin/go-humanize"

var options struct {
	cores    int
	threads  int
	n        int
	minsize  int
	maxsize  int
	sizefile string
	extend   bool
	mainmb   int
	coremb   int
	classes  bool
	loglevel string
	pprof    string
}

func argParse() {
	flag.IntVar(&options.cores, "cores", runtime.NumCPU(),
		"number of cores to shard allocator state")
	flag.IntVar(&options.threads, "threads", runtime.NumCPU(),
		"number of allocating routines, each with its own thread context")
	flag.IntVar(&options.n, "n", 100000,
		"number of allocations per routine")
	flag.IntVar(&options.minsize, "minsize", 8,
		"minimum allocation size")
	flag.IntVar(&options.maxsize, "maxsize", 4096,
		"maximum allocation size")
	flag.StringVar(&options.sizefile, "sizefile", "",
		"newline delimited batch count per size class")
	flag.BoolVar(&options.extend, "extend", true,
		"map new arena segments when exhausted")
	flag.IntVar(&options.mainmb, "mainmb", 32,
		"arena budget in MB for main thread")
	flag.IntVar(&options.coremb, "coremb", 0,
		"arena budget in MB across cores, default 4MB per core")
	flag.BoolVar(&options.classes, "classes", false,
		"print size class table and exit")
	flag.StringVar(&options.loglevel, "log", "info",
		"log level")
	flag.StringVar(&options.pprof, "pprof", "",
		"dump cpu-profile to file")
	flag.Parse()

	if options.coremb <= 0 {
		options.coremb = 4 * options.cores
	}
	if options.minsize <= 0 || options.maxsize < options.minsize {
		fmt.Printf("invalid size range [%v,%v]\n", options.minsize, options.maxsize)
		os.Exit(1)
	}
}

func main() {
	argParse()

	log.SetLogger(nil, map[string]interface{}{"log.level": options.loglevel})
	malloc.LogComponents("malloc")

	setts := s.Settings{
		"cores":             int64(options.cores),
		"arena.extend":      options.extend,
		"arena.mainmb":      int64(options.mainmb),
		"arena.coremb":      int64(options.coremb),
		"pool.slotspercore": int64(options.threads/options.cores + 2),
		"sizeclass.file":    options.sizefile,
	}
	proc := malloc.NewProcess(setts)
	defer proc.Shutdown()

	if options.classes {
		tellclasses(proc)
		return
	}

	if options.pprof != "" {
		fd, err := os.Create(options.pprof)
		if err != nil {
			fmt.Printf("unable to create %q: %v\n", options.pprof, err)
			os.Exit(1)
		}
		defer fd.Close()
		pprof.StartCPUProfile(fd)
		defer pprof.StopCPUProfile()
	}

	now := time.Now()
	allocated, freed := workload(proc)
	took := time.Since(now)
	fmsg := "Took %v for %v allocations of %v, freed %v\n"
	fmt.Printf(fmsg, took, options.n*options.threads, hm.Bytes(uint64(allocated)),
		hm.Bytes(uint64(freed)))
	printstats(proc)
}

type message struct {
	ptr  unsafe.Pointer
	size int64
	fill byte
}

// workload spawn allocating routines, each allocated block is sent
// to a random freeing routine, so most frees are remote frees.
func workload(proc *malloc.Process) (allocated, freed int64) {
	var awg, fwg sync.WaitGroup
	var mu sync.Mutex

	chans := make([]chan message, options.threads)
	for i := range chans {
		chans[i] = make(chan message, 1000)
	}

	for i := 0; i < options.threads; i++ {
		awg.Add(1)
		go func(id int) {
			defer awg.Done()
			thread := proc.Thread()
			defer thread.Close()

			n := int64(0)
			src := make([]byte, options.maxsize)
			for j := range src {
				src[j] = byte(id)
			}
			for j := 0; j < options.n; j++ {
				size := rand.Intn(options.maxsize-options.minsize+1) + options.minsize
				ptr := thread.Malloc(int64(size))
				if ptr == nil {
					fmt.Printf("routine %v: out of memory for %v\n", id, size)
					break
				}
				lib.Memcpy(ptr, unsafe.Pointer(&src[0]), size)
				chans[rand.Intn(len(chans))] <- message{ptr, int64(size), byte(id)}
				n += int64(size)
			}
			mu.Lock()
			allocated += n
			mu.Unlock()
		}(i)

		fwg.Add(1)
		go func(ch chan message) {
			defer fwg.Done()
			thread := proc.Thread()
			defer thread.Close()

			n := int64(0)
			for msg := range ch {
				for _, b := range lib.Bytes(msg.ptr, int(msg.size)) {
					if b != msg.fill {
						panic(fmt.Errorf("expected %v, got %v", msg.fill, b))
					}
				}
				thread.Free(msg.ptr)
				n += msg.size
			}
			mu.Lock()
			freed += n
			mu.Unlock()
		}(chans[i])
	}

	awg.Wait()
	for _, ch := range chans {
		close(ch)
	}
	fwg.Wait()
	return allocated, freed
}

func printstats(proc *malloc.Process) {
	capacity, heap, alloc, overhead := proc.Info()
	fmsg := "Memory{capacity:%v heap:%v alloc:%v overhead:%v}\n"
	fmt.Printf(fmsg, hm.Bytes(uint64(capacity)), hm.Bytes(uint64(heap)),
		hm.Bytes(uint64(alloc)), hm.Bytes(uint64(overhead)))

	slots, utilz := proc.Utilization()
	for i, slot := range slots {
		fmt.Printf("arena slot %v: %.2f%%\n", slot, utilz[i])
	}
	fmt.Println(lib.Prettystats(proc.Stats(), true))
	if err := proc.Validate(); err != nil {
		fmt.Printf("validate: %v\n", err)
	}
	proc.Log()
}

func tellclasses(proc *malloc.Process) {
	batches := proc.Sizeclasses().Batches()
	fmt.Printf("size classes from %v\n", proc.Sizeclasses().Source())
	for index := malloc.Minclass; index <= malloc.Maxclass; index++ {
		if batches[index] <= 0 {
			continue
		}
		size := int64(1) << uint(index)
		stride := malloc.Stride(size)
		mint := stride * batches[index]
		util := float64(size) / float64(stride) * 100
		fmsg := "class %2v size %8v batch %6v stride %8v mint %8v util %.2f%%\n"
		fmt.Printf(fmsg, index, hm.Bytes(uint64(size)), batches[index],
			stride, hm.Bytes(uint64(mint)), util)
	}
}
