package malloc

import "github.com/bnclabs/golog"
import s "github.com/bnclabs/gosettings"

func init() {
	setts := map[string]interface{}{
		"log.level": "ignore",
		"log.file":  "",
	}
	log.SetLogger(nil, setts)
	LogComponents("self")
}

func testsettings(cores int64) s.Settings {
	return s.Settings{
		"cores":             cores,
		"pagesize":          int64(4096),
		"arena.mainmb":      int64(1),
		"arena.coremb":      cores * 2,
		"pool.slotspercore": int64(4),
		"log.interval":      int64(0),
	}
}

func testarena(cores int, extend bool) *Arena {
	return NewArena(cores, 4096, Megabyte, int64(cores)*Megabyte, extend, 0)
}

// releaseproc unmap arena memory held by proc, engine might not be
// built when the test bails out early.
func releaseproc(proc *Process) {
	if proc.arena != nil {
		proc.arena.Release()
	}
}
