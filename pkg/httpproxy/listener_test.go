package httpproxy

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"sshtun/pkg/relay"
	"sshtun/pkg/socks5"
)

// startUpstreamHTTP starts a plain HTTP server answering every request with
// a fixed body, standing in for the real destination reached through the
// tunnel.
func startUpstreamHTTP(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello from upstream"))
	})}
	go srv.Serve(ln)
	return ln.Addr().String(), func() { srv.Close() }
}

func startLocalSocks5(t *testing.T) (addr string, stop func()) {
	t.Helper()
	l := &socks5.Listener{
		Dial: func(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
		},
		Stats: &relay.Stats{},
	}
	if err := l.Start(0); err != nil {
		t.Fatalf("starting socks5: %v", err)
	}
	return l.Addr().String(), func() { l.Stop() }
}

func TestHTTPProxyForwardsPlainRequest(t *testing.T) {
	upstreamAddr, stopUpstream := startUpstreamHTTP(t)
	defer stopUpstream()

	socksAddr, stopSocks := startLocalSocks5(t)
	defer stopSocks()

	hp := &Listener{SocksAddr: socksAddr, Stats: &relay.Stats{}}
	if err := hp.Start(0); err != nil {
		t.Fatalf("starting http proxy: %v", err)
	}
	defer hp.Stop()

	conn, err := net.Dial("tcp", hp.Addr().String())
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer conn.Close()

	req, _ := http.NewRequest("GET", "http://"+upstreamAddr+"/", nil)
	req.Write(conn)

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello from upstream" {
		t.Fatalf("got body %q", body)
	}

	snap := hp.Stats.Snapshot()
	if snap.Total < 1 {
		t.Fatalf("expected plain HTTP request to count toward Stats.Total, got %d", snap.Total)
	}
	if snap.BytesDown == 0 {
		t.Fatalf("expected plain HTTP response bytes counted in Stats.BytesDown, got 0")
	}
}

func TestHTTPProxyConnectRejectsEmptyHost(t *testing.T) {
	hp := &Listener{SocksAddr: "127.0.0.1:1", Stats: &relay.Stats{}}

	client, server := net.Pipe()
	defer client.Close()
	go hp.handleConnect(server, &http.Request{Method: http.MethodConnect, Host: ""}, "test-cid")

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 Bad Request for empty CONNECT host, got %d", resp.StatusCode)
	}
}

func TestHTTPProxyConnectTunnel(t *testing.T) {
	upstreamAddr, stopUpstream := startUpstreamHTTP(t)
	defer stopUpstream()

	socksAddr, stopSocks := startLocalSocks5(t)
	defer stopSocks()

	hp := &Listener{SocksAddr: socksAddr, Stats: &relay.Stats{}}
	if err := hp.Start(0); err != nil {
		t.Fatalf("starting http proxy: %v", err)
	}
	defer hp.Stop()

	conn, err := net.Dial("tcp", hp.Addr().String())
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer conn.Close()

	connectReq := "CONNECT " + upstreamAddr + " HTTP/1.1\r\nHost: " + upstreamAddr + "\r\n\r\n"
	conn.Write([]byte(connectReq))

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading CONNECT response: %v", err)
	}
	if statusLine[:12] != "HTTP/1.1 200" {
		t.Fatalf("unexpected status line: %q", statusLine)
	}
	// consume the trailing blank line of the CONNECT response
	reader.ReadString('\n')

	req, _ := http.NewRequest("GET", "/", nil)
	req.Host = upstreamAddr
	req.Write(conn)

	resp, err := http.ReadResponse(reader, req)
	if err != nil {
		t.Fatalf("reading tunneled response: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello from upstream" {
		t.Fatalf("got body %q", body)
	}
}
