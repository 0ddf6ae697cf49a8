package relay

import "sync/atomic"

// Stats holds cumulative traffic counters for relayed connections.
//
// All fields are safe for concurrent use from multiple relay goroutines;
// no lock is held across a read-then-write, matching the counter shape of
// the pack's own meter type rather than the original implementation's
// single mutex-guarded dict.
type Stats struct {
	BytesUp   atomic.Int64
	BytesDown atomic.Int64
	Active    atomic.Int32
	Total     atomic.Int64
}

// Snapshot is a point-in-time copy of Stats suitable for returning to a
// caller without exposing the live atomics.
type Snapshot struct {
	BytesUp   int64
	BytesDown int64
	Active    int32
	Total     int64
}

// Snapshot reads the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		BytesUp:   s.BytesUp.Load(),
		BytesDown: s.BytesDown.Load(),
		Active:    s.Active.Load(),
		Total:     s.Total.Load(),
	}
}

// connectionOpened records the start of a new proxied connection.
func (s *Stats) connectionOpened() {
	s.Active.Add(1)
	s.Total.Add(1)
}

// connectionClosed records the end of a proxied connection.
func (s *Stats) connectionClosed() {
	s.Active.Add(-1)
}
