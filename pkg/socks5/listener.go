// Package socks5 implements an RFC 1928 CONNECT-only SOCKS5 server that
// forwards accepted connections through a caller-supplied channel opener
// (in practice, an SSH session's direct-tcpip channel).
package socks5

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"sshtun/internal/reuseaddr"
	"sshtun/pkg/relay"
)

const (
	channelOpenTimeout = 10 * time.Second
	acceptPollInterval = 1 * time.Second
	handshakeTimeout   = 10 * time.Second
)

// Dialer opens a connection to host:port on the caller's behalf, typically
// by opening a direct-tcpip channel on a live SSH session.
type Dialer func(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error)

// Listener is a loopback-only SOCKS5 server.
type Listener struct {
	Dial  Dialer
	Stats *relay.Stats
	OnLog func(string)

	listener *net.TCPListener
	stopped  chan struct{}
}

// Start binds 127.0.0.1:port and begins accepting clients in the
// background. The accept loop polls with a 1s deadline rather than
// blocking indefinitely, so Stop returns promptly.
func (l *Listener) Start(port int) error {
	lc := net.ListenConfig{Control: reuseaddr.Control}
	ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("starting SOCKS5 listener: %w", err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return fmt.Errorf("unexpected listener type %T", ln)
	}

	l.listener = tcpLn
	l.stopped = make(chan struct{})
	if l.Stats == nil {
		l.Stats = &relay.Stats{}
	}

	go l.acceptLoop()
	l.log("SOCKS5 proxy started on 127.0.0.1:%d", port)
	return nil
}

// Stop closes the listener, ending the accept loop.
func (l *Listener) Stop() error {
	if l.listener == nil {
		return nil
	}
	close(l.stopped)
	return l.listener.Close()
}

// Addr returns the bound address, once Start has succeeded.
func (l *Listener) Addr() net.Addr {
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

func (l *Listener) acceptLoop() {
	for {
		select {
		case <-l.stopped:
			return
		default:
		}

		l.listener.SetDeadline(time.Now().Add(acceptPollInterval))
		conn, err := l.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		go l.handleClient(conn)
	}
}

func (l *Listener) handleClient(conn net.Conn) {
	cid := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			l.log("panic in SOCKS5 handler [%s]: %v", cid, r)
		}
	}()
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(handshakeTimeout))

	if err := negotiateMethod(conn); err != nil {
		l.log("debug [%s]: SOCKS5 handshake failed: %v", cid, err)
		return
	}

	host, port, failReply, err := readRequest(conn)
	if err != nil {
		l.log("debug [%s]: SOCKS5 request parse failed: %v", cid, err)
		sendReply(conn, failReply)
		return
	}

	conn.SetDeadline(time.Time{})

	ctx, cancel := context.WithTimeout(context.Background(), channelOpenTimeout)
	defer cancel()

	upstream, err := l.Dial(ctx, host, port, channelOpenTimeout)
	if err != nil {
		l.log("debug [%s]: channel open to %s:%d failed: %v", cid, host, port, err)
		sendReply(conn, replyConnectionRefused)
		return
	}
	defer upstream.Close()

	sendReply(conn, replySucceeded)
	l.log("debug [%s]: relaying to %s:%d", cid, host, port)

	r := &relay.Relay{}
	r.Run(conn, upstream, l.Stats)
}

func (l *Listener) log(format string, args ...interface{}) {
	if l.OnLog != nil {
		l.OnLog(fmt.Sprintf(format, args...))
	}
}

const (
	socksVersion5 = 0x05

	cmdConnect = 0x01

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	replySucceeded         = 0x00
	replyGeneralFailure    = 0x01
	replyConnectionRefused = 0x05
	replyCommandNotSupport = 0x07
	replyAddrNotSupported  = 0x08
)

// negotiateMethod reads the version/method-selection message and always
// selects "no authentication", the only mode this server offers.
func negotiateMethod(conn net.Conn) error {
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return err
	}
	if header[0] != socksVersion5 {
		return fmt.Errorf("unsupported SOCKS version %d", header[0])
	}
	nmethods := int(header[1])
	methods := make([]byte, nmethods)
	if _, err := io.ReadFull(conn, methods); err != nil {
		return err
	}
	_, err := conn.Write([]byte{socksVersion5, 0x00})
	return err
}

// readRequest parses a CONNECT request incrementally by address type,
// reading exactly the bytes each atyp requires rather than a fixed-size
// guess. On error it also returns the SOCKS5 reply code the caller should
// send back, since different failures (bad command, bad address type, a
// dropped connection mid-read) warrant different codes.
func readRequest(conn net.Conn) (host string, port int, failReply byte, err error) {
	fixed := make([]byte, 4)
	if _, err := io.ReadFull(conn, fixed); err != nil {
		return "", 0, replyGeneralFailure, err
	}
	cmd, atyp := fixed[1], fixed[3]
	if cmd != cmdConnect {
		return "", 0, replyCommandNotSupport, fmt.Errorf("unsupported command %d", cmd)
	}

	switch atyp {
	case atypIPv4:
		addr := make([]byte, 4)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return "", 0, replyGeneralFailure, err
		}
		host = net.IP(addr).String()

	case atypDomain:
		lenByte := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenByte); err != nil {
			return "", 0, replyGeneralFailure, err
		}
		domain := make([]byte, lenByte[0])
		if _, err := io.ReadFull(conn, domain); err != nil {
			return "", 0, replyGeneralFailure, err
		}
		host = string(domain)

	case atypIPv6:
		addr := make([]byte, 16)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return "", 0, replyGeneralFailure, err
		}
		host = net.IP(addr).String()

	default:
		return "", 0, replyAddrNotSupported, fmt.Errorf("unsupported address type %d", atyp)
	}

	portBytes := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBytes); err != nil {
		return "", 0, replyGeneralFailure, err
	}
	port = int(binary.BigEndian.Uint16(portBytes))

	return host, port, 0, nil
}

func sendReply(conn net.Conn, code byte) {
	reply := []byte{socksVersion5, code, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}
	conn.Write(reply)
}
