// Package tunnel implements the composite tunnel lifecycle: a target SSH
// session (optionally reached through a jump host), a local SOCKS5
// listener, and a local HTTP forward proxy, brought up and torn down as
// one unit.
package tunnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sshtun/pkg/httpproxy"
	"sshtun/pkg/jumpchain"
	"sshtun/pkg/relay"
	"sshtun/pkg/socks5"
	"sshtun/pkg/sshsession"
)

const (
	connectTimeout = 20 * time.Second
	joinBudget     = 3 * time.Second
)

// monitorTick is a var, not a const, so tests can shorten it rather than
// waiting out the real interval.
var monitorTick = 10 * time.Second

// TunnelManager owns the lifecycle of one tunnel: at most one target
// session, an optional jump session, a SOCKS5 listener and an HTTP proxy
// listener, brought up and torn down together. A manager is reusable
// across successive connect/disconnect cycles but never runs two tunnels
// at once - a second Connect implicitly disconnects the first.
type TunnelManager struct {
	// OnStatusChanged and OnLog are invoked from background goroutines
	// (the monitor loop, the accept loops). Callbacks run concurrently and
	// must not call back into the manager from within them.
	OnStatusChanged func(Status)
	OnLog           func(string)

	mu       sync.Mutex
	status   Status
	target   *sshsession.Session
	jump     *sshsession.Session
	socks    *socks5.Listener
	http     *httpproxy.Listener
	stats    *relay.Stats
	stopMon  chan struct{}
	monDone  chan struct{}
	stopOnce sync.Once
}

// Connect brings a tunnel up: target SSH session (via a jump session if
// req.Jump is set), then the SOCKS5 listener, then the HTTP proxy
// listener, in that order. Any failure tears down whatever already
// started and returns the manager to Disconnected before returning the
// error - no half-open tunnel is ever left for the caller to clean up.
//
// A tunnel already running is disconnected first.
func (m *TunnelManager) Connect(ctx context.Context, req ConnectRequest) error {
	m.mu.Lock()
	alreadyConnected := m.status.Kind != Disconnected
	m.mu.Unlock()
	if alreadyConnected {
		m.Disconnect()
	}

	m.setStatus(Status{Kind: Connecting})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var target, jump *sshsession.Session
	var err error

	if req.Jump != nil {
		jumpAuth := req.resolveJumpFallback()
		target, jump, err = jumpchain.Open(ctx,
			jumpAuth.endpoint(), jumpAuth.toAuth(),
			req.Target.endpoint(), req.Target.toAuth(),
			req.KnownHostsPath, m.log)
	} else {
		target = &sshsession.Session{OnLog: m.log, KnownHostsPath: req.KnownHostsPath}
		err = target.Open(ctx, req.Target.endpoint(), req.Target.toAuth(), nil, "target")
	}
	if err != nil {
		m.setStatus(Status{Kind: Disconnected, Detail: err.Error()})
		return err
	}

	stats := &relay.Stats{}

	socksListener := &socks5.Listener{
		Dial:  target.OpenChannel,
		Stats: stats,
		OnLog: m.log,
	}
	if err := socksListener.Start(req.Local.SocksPort); err != nil {
		target.Close()
		if jump != nil {
			jump.Close()
		}
		m.setStatus(Status{Kind: Disconnected, Detail: err.Error()})
		return fmt.Errorf("starting SOCKS5 listener: %w", err)
	}

	httpListener := &httpproxy.Listener{
		SocksAddr: socksListener.Addr().String(),
		Stats:     stats,
		OnLog:     m.log,
	}
	if err := httpListener.Start(req.Local.HTTPPort); err != nil {
		socksListener.Stop()
		target.Close()
		if jump != nil {
			jump.Close()
		}
		m.setStatus(Status{Kind: Disconnected, Detail: err.Error()})
		return fmt.Errorf("starting HTTP proxy listener: %w", err)
	}

	m.mu.Lock()
	m.target = target
	m.jump = jump
	m.socks = socksListener
	m.http = httpListener
	m.stats = stats
	m.stopMon = make(chan struct{})
	m.monDone = make(chan struct{})
	m.stopOnce = sync.Once{}
	stopMon, monDone := m.stopMon, m.monDone
	m.mu.Unlock()

	go m.monitor(stopMon, monDone)

	m.setStatus(Status{Kind: Connected, Detail: fmt.Sprintf("%s:%d", req.Target.Host, req.Target.Port)})
	return nil
}

// monitor polls transport liveness every 10s and demotes to Disconnected
// the moment either the target or (if present) jump session stops
// answering, tearing down both listeners the same way Disconnect does.
//
// The teardown runs in its own goroutine rather than inline: teardown
// waits on monDone to confirm the monitor has exited, and monitor is the
// only thing that closes monDone, so calling teardown from the monitor
// goroutine itself would always block for the full joinBudget waiting on
// a channel it alone could close. Returning first (closing done via the
// deferred close) lets a concurrent teardown see monDone already closed
// and proceed immediately.
func (m *TunnelManager) monitor(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(monitorTick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			target, jump := m.target, m.jump
			m.mu.Unlock()

			if target == nil {
				return
			}
			lost := !target.IsActive()
			if jump != nil && !lost {
				lost = !jump.IsActive()
			}
			if lost {
				go m.teardown("transport lost")
				return
			}
		}
	}
}

// Disconnect tears everything down in the reverse of startup order (HTTP
// proxy, SOCKS5, target session, jump session) and is idempotent: a second
// call on an already-Disconnected manager is a no-op. It waits up to
// joinBudget for the monitor goroutine to exit before returning.
func (m *TunnelManager) Disconnect() {
	m.teardown("")
}

func (m *TunnelManager) teardown(reason string) {
	m.mu.Lock()
	if m.status.Kind == Disconnected {
		m.mu.Unlock()
		return
	}
	http, socks, target, jump := m.http, m.socks, m.target, m.jump
	stopMon, monDone := m.stopMon, m.monDone
	m.http, m.socks, m.target, m.jump = nil, nil, nil, nil
	m.mu.Unlock()

	m.stopOnce.Do(func() {
		if stopMon != nil {
			close(stopMon)
		}
	})
	if monDone != nil {
		select {
		case <-monDone:
		case <-time.After(joinBudget):
		}
	}

	if http != nil {
		http.Stop()
	}
	if socks != nil {
		socks.Stop()
	}
	if target != nil {
		target.Close()
	}
	if jump != nil {
		jump.Close()
	}

	m.setStatus(Status{Kind: Disconnected, Detail: reason})
}

// GetStats returns a point-in-time snapshot of byte and connection counts
// across both listeners. The stats source is fixed for the lifetime of a
// connection - a snapshot taken mid-teardown simply reflects the last
// counts before the listeners stopped.
func (m *TunnelManager) GetStats() relay.Snapshot {
	m.mu.Lock()
	stats := m.stats
	m.mu.Unlock()
	if stats == nil {
		return relay.Snapshot{}
	}
	return stats.Snapshot()
}

// Status returns the current lifecycle state.
func (m *TunnelManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *TunnelManager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.OnStatusChanged != nil {
		m.OnStatusChanged(s)
	}
}

func (m *TunnelManager) log(line string) {
	if m.OnLog != nil {
		m.OnLog(line)
	}
}
