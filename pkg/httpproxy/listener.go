// Package httpproxy implements a local HTTP/HTTPS forward proxy whose
// upstream connections always go through a local SOCKS5 listener rather
// than opening SSH channels directly, so there is one chokepoint for
// traffic leaving the tunnel regardless of which listener the client used.
package httpproxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sshtun/internal/reuseaddr"
	"sshtun/pkg/hostutil"
	"sshtun/pkg/relay"
)

const clientTimeout = 30 * time.Second

// Listener is a loopback-only HTTP/HTTPS forward proxy.
type Listener struct {
	// SocksAddr is the address of the local SOCKS5 listener all upstream
	// dials go through.
	SocksAddr string
	Stats     *relay.Stats
	OnLog     func(string)

	listener net.Listener
}

// Start binds 127.0.0.1:port and begins accepting clients in the
// background.
func (l *Listener) Start(port int) error {
	lc := net.ListenConfig{Control: reuseaddr.Control}
	ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("starting HTTP proxy listener: %w", err)
	}
	l.listener = ln
	if l.Stats == nil {
		l.Stats = &relay.Stats{}
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go l.handleClient(conn)
		}
	}()

	l.log("HTTP proxy started on 127.0.0.1:%d", port)
	return nil
}

// Stop closes the listener.
func (l *Listener) Stop() error {
	if l.listener == nil {
		return nil
	}
	return l.listener.Close()
}

// Addr returns the bound address, once Start has succeeded.
func (l *Listener) Addr() net.Addr {
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

func (l *Listener) handleClient(conn net.Conn) {
	cid := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			l.log("panic in HTTP proxy handler [%s]: %v", cid, r)
		}
	}()
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(clientTimeout))

	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		l.log("debug [%s]: reading HTTP request failed: %v", cid, err)
		l.sendError(conn, 400, "Bad Request")
		return
	}

	if req.Method == http.MethodConnect {
		l.handleConnect(conn, req, cid)
		return
	}
	l.handleRequest(conn, req, cid)
}

func (l *Listener) handleConnect(conn net.Conn, req *http.Request, cid string) {
	host, port, err := hostutil.ParseHostPort(req.Host, 443)
	if err != nil {
		l.log("debug [%s]: invalid CONNECT host %q: %v", cid, req.Host, err)
		l.sendError(conn, 400, "Bad Request")
		return
	}

	upstream, err := dialViaSocks5(l.SocksAddr, host, port, clientTimeout)
	if err != nil {
		l.log("debug [%s]: CONNECT upstream dial to %s:%d failed: %v", cid, host, port, err)
		l.sendError(conn, 502, "Bad Gateway")
		return
	}
	defer upstream.Close()

	if _, err := conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}

	conn.SetDeadline(time.Time{})
	l.log("debug [%s]: CONNECT tunnel to %s:%d established", cid, host, port)
	r := &relay.Relay{}
	r.Run(conn, upstream, l.Stats)
}

func (l *Listener) handleRequest(conn net.Conn, req *http.Request, cid string) {
	host, port, path, err := parseTarget(req)
	if err != nil {
		l.log("debug [%s]: parsing HTTP target failed: %v", cid, err)
		l.sendError(conn, 400, "Bad Request")
		return
	}

	upstream, err := dialViaSocks5(l.SocksAddr, host, port, clientTimeout)
	if err != nil {
		l.log("debug [%s]: HTTP upstream dial to %s:%d failed: %v", cid, host, port, err)
		l.sendError(conn, 502, "Bad Gateway")
		return
	}
	defer upstream.Close()

	if err := forwardRequest(upstream, req, path); err != nil {
		l.log("debug [%s]: forwarding HTTP request failed: %v", cid, err)
		l.sendError(conn, 502, "Bad Gateway")
		return
	}

	conn.SetDeadline(time.Time{})
	l.log("debug [%s]: relaying plain HTTP response from %s:%d", cid, host, port)
	(&relay.Relay{}).Run(conn, upstream, l.Stats)
}

// parseTarget extracts host, port and request path from either an
// absolute-URI request line (the classic proxy form) or a relative path
// plus Host header.
func parseTarget(req *http.Request) (host string, port int, path string, err error) {
	if req.URL.IsAbs() {
		parsed, err := url.Parse(req.URL.String())
		if err != nil {
			return "", 0, "", err
		}
		host = parsed.Hostname()
		if parsed.Port() != "" {
			port, err = strconv.Atoi(parsed.Port())
			if err != nil {
				return "", 0, "", fmt.Errorf("invalid port in URL: %s", parsed.Port())
			}
		} else {
			port = 80
			if parsed.Scheme == "https" {
				port = 443
			}
		}
		path = parsed.RequestURI()
		return host, port, path, nil
	}

	if req.Host == "" {
		return "", 0, "", fmt.Errorf("no Host header in HTTP request")
	}
	host, port, err = hostutil.ParseHostPort(req.Host, 80)
	if err != nil {
		return "", 0, "", fmt.Errorf("invalid Host header: %w", err)
	}
	path = req.URL.RequestURI()
	return host, port, path, nil
}

// forwardRequest rewrites the request line to a relative path, restores the
// Host header (http.ReadRequest moves it out of req.Header into req.Host)
// and drops the Proxy-Connection header before sending it upstream.
func forwardRequest(upstream net.Conn, req *http.Request, path string) error {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s %s\r\n", req.Method, path, req.Proto))
	if req.Host != "" {
		b.WriteString(fmt.Sprintf("Host: %s\r\n", req.Host))
	}
	for name, values := range req.Header {
		if strings.EqualFold(name, "Proxy-Connection") {
			continue
		}
		for _, value := range values {
			b.WriteString(fmt.Sprintf("%s: %s\r\n", name, value))
		}
	}
	b.WriteString("\r\n")

	if _, err := upstream.Write([]byte(b.String())); err != nil {
		return err
	}
	if req.Body != nil {
		defer req.Body.Close()
		if _, err := io.Copy(upstream, req.Body); err != nil {
			return err
		}
	}
	return nil
}

func (l *Listener) sendError(conn net.Conn, code int, text string) {
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Length: 0\r\nConnection: close\r\n\r\n", code, text)
}

func (l *Listener) log(format string, args ...interface{}) {
	if l.OnLog != nil {
		l.OnLog(fmt.Sprintf(format, args...))
	}
}
