// Package dblock serializes test packages that share external state. The
// lock is a TCP listener on a fixed loopback port, so it works across
// processes without touching the filesystem.
package dblock

import (
	"net"
	"time"
)

const (
	lockAddr  = "127.0.0.1:45433"
	retryWait = 25 * time.Millisecond
)

// Acquire blocks until the package-level lock is free and returns the
// release function. Call it from TestMain before m.Run.
func Acquire() (release func()) {
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			return func() { _ = ln.Close() }
		}
		time.Sleep(retryWait)
	}
}
