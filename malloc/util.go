package malloc

import "fmt"

// panicerr aborts the caller with an error wrapping one of the api
// sentinels. Allocator does not attempt to recover from corruption or
// misconfiguration.
func panicerr(err error, fmsg string, args ...interface{}) {
	msg := fmt.Sprintf(fmsg, args...)
	fatalf("%v: %v\n", err, msg)
	panic(fmt.Errorf("%w: %v", err, msg))
}

func maxint64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minint64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
