//go:build !linux
// +build !linux

package malloc

func affinitycore(cores int) (int, bool) {
	return 0, false
}
