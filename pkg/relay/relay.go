// Package relay implements the bidirectional byte pump that sits between a
// client connection and the SSH channel opened on its behalf.
package relay

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	bufSize     = 64 * 1024
	idleTimeout = 2 * time.Second
)

// Relay copies data between two connections until one side closes or
// errors, then closes both exactly once.
type Relay struct {
	Accelerator Accelerator
}

// Run relays data between a and b, updating stats as bytes move. It blocks
// until both directions have terminated, which happens at most idleTimeout
// after either side closes.
func (r *Relay) Run(a, b net.Conn, stats *Stats) {
	if r.Accelerator != nil && r.Accelerator.TryRelay(a, b, stats) {
		return
	}

	stats.connectionOpened()
	defer stats.connectionClosed()

	var once sync.Once
	closeBoth := func() {
		a.Close()
		b.Close()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pump(a, b, &stats.BytesDown)
		once.Do(closeBoth)
	}()
	go func() {
		defer wg.Done()
		pump(b, a, &stats.BytesUp)
		once.Do(closeBoth)
	}()
	wg.Wait()
}

// pump copies dst <- src in bufSize chunks, using a read idle deadline so
// a blocked reader notices the other side closing without needing a
// separate cancellation channel. Any read or write error - including the
// deliberate close from the peer goroutine - ends the pump silently.
func pump(dst, src net.Conn, counter *atomic.Int64) {
	buf := make([]byte, bufSize)
	for {
		src.SetReadDeadline(time.Now().Add(idleTimeout))
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
			counter.Add(int64(n))
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
	}
}
