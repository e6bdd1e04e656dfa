package malloc

import "unsafe"

import "github.com/bnclabs/shardmalloc/api"

// Signature stamped on every chunk header.
const Signature = uint64(0xDEADC0DE)

// chunk header placed immediately before the body handed out to
// application. Lives in arena memory, links are plain addresses.
type chunk struct {
	sig      uint64
	core     int64   // core that minted the chunk
	size     int64   // usable body size, power of 2
	body     uintptr // address of body
	next     uintptr // next chunk in free-list, 0 when allocated
	flags    uint64
}

// chunk flags.
const (
	flagInlist = uint64(1) // chunk is held by a free-list
)

func (c *chunk) inlist() bool {
	return c.flags&flagInlist != 0
}

const headersize = int64(unsafe.Sizeof(chunk{}))

func init() {
	if headersize%api.Alignment != 0 {
		panic("chunk header must be a multiple of 16 bytes")
	}
}

func chunkat(addr uintptr) *chunk {
	if addr == 0 {
		return nil
	}
	return (*chunk)(unsafe.Pointer(addr))
}

func (c *chunk) addr() uintptr {
	return uintptr(unsafe.Pointer(c))
}

func (c *chunk) getnext() *chunk {
	return chunkat(c.next)
}

func (c *chunk) setnext(next *chunk) {
	if next == nil {
		c.next = 0
		return
	}
	c.next = next.addr()
}

func (c *chunk) bodyptr() unsafe.Pointer {
	return unsafe.Pointer(c.body)
}

func (c *chunk) valid(cores int) bool {
	if c.sig != Signature {
		return false
	} else if c.core < 0 || c.core >= int64(cores) {
		return false
	} else if c.body != c.addr()+uintptr(headersize) {
		return false
	}
	return true
}

// Stride return the distance between two consecutive chunks minted
// for an allocation of `size` bytes.
func Stride(size int64) int64 {
	return api.Align(headersize+api.Roundpow2(size), api.Alignment)
}

// headerof locate and validate the header for a pointer handed out
// by this allocator.
func headerof(ptr unsafe.Pointer, cores int) *chunk {
	if !api.Aligned(uintptr(ptr), api.Alignment) {
		panicerr(api.ErrorCorruption, "pointer %p not 16-byte aligned", ptr)
	}
	c := chunkat(uintptr(ptr) - uintptr(headersize))
	if c.sig != Signature {
		panicerr(api.ErrorCorruption, "pointer %p invalid signature %x", ptr, c.sig)
	} else if c.core < 0 || c.core >= int64(cores) {
		panicerr(api.ErrorCorruption, "pointer %p invalid core %v", ptr, c.core)
	}
	return c
}

// Chunksize return the usable size of the memory block pointed by ptr.
func Chunksize(ptr unsafe.Pointer) int64 {
	return chunkat(uintptr(ptr) - uintptr(headersize)).size
}

// Chunkcore return the core that minted the memory block pointed by ptr.
func Chunkcore(ptr unsafe.Pointer) int {
	return int(chunkat(uintptr(ptr) - uintptr(headersize)).core)
}

// Mintchunks carve `n` chunks for `size` bytes out of arena slot
// `slot`, stamped with `core`. Chunks are linked head to tail, tail's
// next is nil. Return the base address of the batch.
func Mintchunks(
	arena *Arena, slot, core int, size, n int64) (base uintptr, head, tail *chunk, err error) {

	size = api.Roundpow2(size)
	if size <= 0 || n <= 0 {
		return 0, nil, nil, api.ErrorOutofMemory
	}
	stride := Stride(size)
	if stride <= 0 || n > Maxarenasize/stride {
		return 0, nil, nil, api.ErrorOutofMemory
	}
	nbytes := api.Align(stride*n, arena.pagesize)
	if base, err = arena.Allocate(slot, nbytes); err != nil {
		return 0, nil, nil, err
	}

	addr := base
	for i := int64(0); i < n; i++ {
		c := chunkat(addr)
		c.sig, c.core, c.size = Signature, int64(core), size
		c.body, c.next, c.flags = addr+uintptr(headersize), 0, flagInlist
		initblock(c.body, size)
		if tail != nil {
			tail.next = addr
		} else {
			head = c
		}
		tail = c
		addr += uintptr(stride)
	}
	debugf("minted %v chunks of %v bytes for core %v from slot %v\n",
		n, size, core, slot)
	return base, head, tail, nil
}
