package sshsession

import (
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// channelConn adapts an ssh.Channel to net.Conn so it can be handed to the
// relay, to the proxy listeners, and to the jump chain's
// SSH-handshake-over-channel path unchanged. ssh.Channel has no concept of deadlines or addresses; the
// deadline setters are no-ops (closing either end from the relay's
// sync.Once unblocks a pending Read immediately, which is the only
// cancellation channelConn actually needs) and the addresses are fixed
// placeholders naming the tunnel itself rather than a real socket peer.
type channelConn struct {
	ssh.Channel
}

// newChannelConn wraps ch as a net.Conn.
func newChannelConn(ch ssh.Channel) net.Conn {
	return channelConn{Channel: ch}
}

func (channelConn) LocalAddr() net.Addr  { return tunnelAddr{} }
func (channelConn) RemoteAddr() net.Addr { return tunnelAddr{} }

func (channelConn) SetDeadline(time.Time) error     { return nil }
func (channelConn) SetReadDeadline(time.Time) error  { return nil }
func (channelConn) SetWriteDeadline(time.Time) error { return nil }

type tunnelAddr struct{}

func (tunnelAddr) Network() string { return "ssh-channel" }
func (tunnelAddr) String() string  { return "ssh-channel" }
