//go:build !unix
// +build !unix

package malloc

// Platforms without mmap fall back to large byte slices, kept alive by
// arena bookkeeping until Release.
func mapanon(size int64) ([]byte, error) {
	return make([]byte, size), nil
}

func unmap(segment []byte) error {
	return nil
}
