//go:build linux
// +build linux

package malloc

import "runtime"

import "golang.org/x/sys/unix"

// affinitycore lock calling goroutine to its OS thread and, if the
// thread's scheduler affinity names a single cpu, map it to a core.
func affinitycore(cores int) (int, bool) {
	runtime.LockOSThread()
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		debugf("sched_getaffinity: %v\n", err)
		return 0, false
	} else if set.Count() != 1 {
		return 0, false
	}
	for cpu := 0; cpu < 1024; cpu++ {
		if set.IsSet(cpu) {
			return cpu % cores, true
		}
	}
	return 0, false
}
