// Package flowid generates a host-and-boot-time-scoped identifier for one
// import run, for embedding in notify progress messages and the end-of-run
// log line so multiple concurrent runs on the same host are distinguishable.
package flowid

import (
	"time"

	"github.com/m-lab/uuid"
)

// RunID returns a fresh identifier for one import run: m-lab/uuid's
// host/boot-time prefix plus the run's start time as a cookie, unique
// across concurrent runs on one host and stable for the lifetime of that
// run. uuid.FromCookie was built to turn a TCP socket's SO_COOKIE into a
// globally unique id; a run's start time in nanoseconds serves the same
// role here, since it is likewise unique for the lifetime of one boot.
func RunID(start time.Time) (string, error) {
	return uuid.FromCookie(uint64(start.UnixNano()))
}
