//go:build debug
// +build debug

package malloc

import "unsafe"

import "github.com/bnclabs/shardmalloc/lib"

// initblock fill minted chunk bodies with 0xff so that reads of
// uninitialized memory show up in tests.
func initblock(block uintptr, size int64) {
	lib.Memset(unsafe.Pointer(block), 0xff, int(size))
}

const debugbuild = true
