// Package dblock serialises database-backed tests across packages. go test
// runs packages in parallel processes, and every package migrates and
// truncates the same ledger schema.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultAddr = "127.0.0.1:45433"

// Acquire blocks until this process holds the lock and returns its release
// func. DBLOCK_ADDR overrides the listen address used as the lock.
func Acquire() func() {
	addr := os.Getenv("DBLOCK_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
