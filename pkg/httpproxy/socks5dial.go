package httpproxy

import (
	"fmt"
	"io"
	"net"
	"time"
)

// dialViaSocks5 connects to destHost:destPort through a local, unauthenticated
// SOCKS5 proxy at socksAddr. The reply is parsed incrementally by address
// type instead of reading a fixed 10-byte guess: only an IPv4 reply is
// exactly 10 bytes, an IPv6 reply is longer and a domain-name reply can be
// longer or shorter, so a fixed read either
// truncates the bound-address field or leaves trailing bytes unread on the
// socket for the next operation to trip over.
func dialViaSocks5(socksAddr, destHost string, destPort int, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", socksAddr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing local SOCKS5 %s: %w", socksAddr, err)
	}
	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		conn.Close()
		return nil, err
	}
	method := make([]byte, 2)
	if _, err := io.ReadFull(conn, method); err != nil {
		conn.Close()
		return nil, err
	}
	if method[0] != 0x05 || method[1] != 0x00 {
		conn.Close()
		return nil, fmt.Errorf("SOCKS5 handshake rejected (method %v)", method)
	}

	hostBytes := []byte(destHost)
	req := make([]byte, 0, 7+len(hostBytes))
	req = append(req, 0x05, 0x01, 0x00, 0x03, byte(len(hostBytes)))
	req = append(req, hostBytes...)
	req = append(req, byte(destPort>>8), byte(destPort))
	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, err
	}

	fixed := make([]byte, 4)
	if _, err := io.ReadFull(conn, fixed); err != nil {
		conn.Close()
		return nil, err
	}
	if fixed[1] != 0x00 {
		conn.Close()
		return nil, fmt.Errorf("SOCKS5 CONNECT failed (reply code %d)", fixed[1])
	}

	var remaining int
	switch fixed[3] {
	case 0x01: // IPv4
		remaining = 4 + 2
	case 0x03: // domain
		lenByte := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenByte); err != nil {
			conn.Close()
			return nil, err
		}
		remaining = int(lenByte[0]) + 2
	case 0x04: // IPv6
		remaining = 16 + 2
	default:
		conn.Close()
		return nil, fmt.Errorf("SOCKS5 reply used unsupported address type %d", fixed[3])
	}

	if remaining > 0 {
		if _, err := io.ReadFull(conn, make([]byte, remaining)); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return conn, nil
}
