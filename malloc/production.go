//go:build !debug
// +build !debug

package malloc

// initblock is a no-op in production builds, freshly mapped arena
// memory is already zero.
func initblock(block uintptr, size int64) {
}

const debugbuild = false
