//go:build unix
// +build unix

package malloc

import "golang.org/x/sys/unix"

func mapanon(size int64) ([]byte, error) {
	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := unix.MAP_ANON | unix.MAP_PRIVATE
	return unix.Mmap(-1, 0, int(size), prot, flags)
}

func unmap(segment []byte) error {
	return unix.Munmap(segment)
}
