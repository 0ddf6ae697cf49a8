package sshsession

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

const handshakeTimeout = 20 * time.Second

// Session wraps an authenticated SSH connection and the raw direct-tcpip
// channel opener that the local proxy listeners use to reach destinations
// through it.
type Session struct {
	client *ssh.Client
	sock   net.Conn

	// OnLog receives banner text and other informational lines. May be nil.
	OnLog func(string)
	// KnownHostsPath, if set, upgrades host key verification from
	// trust-on-first-use to real known_hosts checking.
	KnownHostsPath string
}

// Open authenticates against ep as auth. When sock is nil a fresh TCP
// connection is dialed; otherwise the handshake runs over sock (a channel
// obtained from a jump session). hop labels which side of a jump chain this
// is ("target" or "jump") purely for error messages.
func (s *Session) Open(ctx context.Context, ep Endpoint, auth Auth, sock net.Conn, hop string) error {
	method, err := auth.sshAuthMethod()
	if err != nil {
		return err
	}

	hkcb, err := hostKeyCallback(s.KnownHostsPath)
	if err != nil {
		return err
	}

	conn := sock
	if conn == nil {
		dialer := net.Dialer{Timeout: handshakeTimeout}
		conn, err = dialer.DialContext(ctx, "tcp", net.JoinHostPort(ep.Host, fmt.Sprintf("%d", ep.Port)))
		if err != nil {
			return fmt.Errorf("dial %s:%d: %w", ep.Host, ep.Port, err)
		}
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	config := &ssh.ClientConfig{
		User:            ep.Username,
		Auth:            []ssh.AuthMethod{method},
		HostKeyCallback: hkcb,
		Timeout:         handshakeTimeout,
		BannerCallback: func(message string) error {
			if s.OnLog != nil {
				s.OnLog(stripHTMLTags(message))
			}
			return nil
		},
	}

	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, net.JoinHostPort(ep.Host, fmt.Sprintf("%d", ep.Port)), config)
	conn.SetDeadline(time.Time{})
	if err != nil {
		if nErr, ok := err.(net.Error); ok && nErr.Timeout() {
			return fmt.Errorf("ssh handshake timed out: %w", err)
		}
		return &AuthError{Hop: hop, Mode: authModeOf(auth), Err: err}
	}

	s.client = ssh.NewClient(sshConn, chans, reqs)
	s.sock = conn
	return nil
}

// IsActive reports whether the underlying transport is still usable.
func (s *Session) IsActive() bool {
	if s.client == nil {
		return false
	}
	_, _, err := s.client.SendRequest("keepalive@sshsession", true, nil)
	return err == nil
}

// Close tears down the SSH client and its transport. Safe to call more
// than once.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// OpenChannel opens a direct-tcpip channel to host:port, with the
// originator address fixed at 127.0.0.1:0 exactly as the SOCKS5/HTTP proxy
// contracts require. (*ssh.Client).Dial doesn't let a caller pick the
// originator, so the channel-open payload is marshaled by hand here instead
// of going through it.
func (s *Session) OpenChannel(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error) {
	if s.client == nil {
		return nil, fmt.Errorf("session not open")
	}

	payload := directTCPIPPayload{
		DestAddr: host,
		DestPort: uint32(port),
		OrigAddr: "127.0.0.1",
		OrigPort: 0,
	}

	type result struct {
		ch  ssh.Channel
		err error
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resCh := make(chan result, 1)
	go func() {
		ch, reqs, err := s.client.OpenChannel("direct-tcpip", ssh.Marshal(payload))
		if err != nil {
			resCh <- result{nil, err}
			return
		}
		go ssh.DiscardRequests(reqs)
		resCh <- result{ch, nil}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("opening channel to %s:%d: %w", host, port, ctx.Err())
	case r := <-resCh:
		if r.err != nil {
			return nil, fmt.Errorf("opening channel to %s:%d: %w", host, port, r.err)
		}
		return newChannelConn(r.ch), nil
	}
}

// directTCPIPPayload is the wire payload of an SSH direct-tcpip channel
// open request (RFC 4254 §7.2).
type directTCPIPPayload struct {
	DestAddr string
	DestPort uint32
	OrigAddr string
	OrigPort uint32
}
