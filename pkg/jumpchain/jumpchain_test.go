package jumpchain

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"sshtun/pkg/sshsession"
)

// startTestSSHServer starts an in-process SSH server that accepts
// user/pass and forwards direct-tcpip channels by dialing the real
// destination, standing in for both the jump host and the target host in
// these tests.
func startTestSSHServer(t *testing.T, user, pass string) (host string, port int, stop func()) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if c.User() == user && string(password) == pass {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials")
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		for {
			nConn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				sconn, chans, reqs, err := ssh.NewServerConn(nConn, config)
				if err != nil {
					return
				}
				go ssh.DiscardRequests(reqs)
				for newChannel := range chans {
					if newChannel.ChannelType() != "direct-tcpip" {
						newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
						continue
					}
					var payload struct {
						DestAddr string
						DestPort uint32
						OrigAddr string
						OrigPort uint32
					}
					if err := ssh.Unmarshal(newChannel.ExtraData(), &payload); err != nil {
						newChannel.Reject(ssh.Prohibited, "bad payload")
						continue
					}
					dest, err := net.DialTimeout("tcp", net.JoinHostPort(payload.DestAddr, strconv.Itoa(int(payload.DestPort))), 5*time.Second)
					if err != nil {
						newChannel.Reject(ssh.ConnectionFailed, err.Error())
						continue
					}
					channel, reqs, err := newChannel.Accept()
					if err != nil {
						dest.Close()
						continue
					}
					go ssh.DiscardRequests(reqs)
					go relay(channel, dest)
				}
				sconn.Close()
			}()
		}
	}()

	h, p, _ := net.SplitHostPort(listener.Addr().String())
	portNum, _ := strconv.Atoi(p)
	return h, portNum, func() { listener.Close() }
}

func relay(a, b interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error
}) {
	defer a.Close()
	defer b.Close()
	done := make(chan struct{}, 2)
	cp := func(dst, src interface {
		Read([]byte) (int, error)
		Write([]byte) (int, error)
	}) {
		buf := make([]byte, 32*1024)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				if _, werr := dst.Write(buf[:n]); werr != nil {
					break
				}
			}
			if err != nil {
				break
			}
		}
		done <- struct{}{}
	}
	go cp(b, a)
	go cp(a, b)
	<-done
}

func TestJumpChainOpen(t *testing.T) {
	targetHost, targetPort, stopTarget := startTestSSHServer(t, "target-user", "target-pass")
	defer stopTarget()

	jumpHost, jumpPort, stopJump := startTestSSHServer(t, "jump-user", "jump-pass")
	defer stopJump()

	target, jump, err := Open(context.Background(),
		sshsession.Endpoint{Host: jumpHost, Port: jumpPort, Username: "jump-user"},
		sshsession.PasswordAuth{Secret: "jump-pass"},
		sshsession.Endpoint{Host: targetHost, Port: targetPort, Username: "target-user"},
		sshsession.PasswordAuth{Secret: "target-pass"},
		"", nil,
	)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer target.Close()
	defer jump.Close()

	if !target.IsActive() || !jump.IsActive() {
		t.Fatal("expected both sessions active")
	}
}

func TestJumpChainTargetAuthFailureLabelsTarget(t *testing.T) {
	targetHost, targetPort, stopTarget := startTestSSHServer(t, "target-user", "target-pass")
	defer stopTarget()

	jumpHost, jumpPort, stopJump := startTestSSHServer(t, "jump-user", "jump-pass")
	defer stopJump()

	_, _, err := Open(context.Background(),
		sshsession.Endpoint{Host: jumpHost, Port: jumpPort, Username: "jump-user"},
		sshsession.PasswordAuth{Secret: "jump-pass"},
		sshsession.Endpoint{Host: targetHost, Port: targetPort, Username: "target-user"},
		sshsession.PasswordAuth{Secret: "wrong"},
		"", nil,
	)
	if err == nil {
		t.Fatal("expected error")
	}
	authErr, ok := err.(*sshsession.AuthError)
	if !ok {
		t.Fatalf("expected *sshsession.AuthError, got %T: %v", err, err)
	}
	if authErr.Hop != "target" {
		t.Fatalf("expected hop=target, got %q", authErr.Hop)
	}
}
