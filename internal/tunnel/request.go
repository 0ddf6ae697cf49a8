// Package tunnel implements the composite tunnel lifecycle: a target SSH
// session (optionally reached through a jump host), a local SOCKS5 listener,
// and a local HTTP forward proxy, brought up and torn down as one unit.
package tunnel

import "sshtun/pkg/sshsession"

// HostAuth is the host/credential pair accepted from configuration or CLI
// flags for either the target or the jump hop. UseKey is the explicit,
// caller-set mode switch; Password/KeyPath are just the payload for
// whichever mode UseKey names, never the thing that decides it.
type HostAuth struct {
	Host     string
	Port     int
	Username string
	UseKey   bool
	Password string
	KeyPath  string
	KeyPass  string
}

// toAuth converts the explicit UseKey switch into a sealed sshsession.Auth
// value. It never inspects which of Password/KeyPath happens to be set.
func (h HostAuth) toAuth() sshsession.Auth {
	if h.UseKey {
		return sshsession.KeyAuth{Path: h.KeyPath, Passphrase: h.KeyPass}
	}
	return sshsession.PasswordAuth{Secret: h.Password}
}

func (h HostAuth) endpoint() sshsession.Endpoint {
	return sshsession.Endpoint{Host: h.Host, Port: h.Port, Username: h.Username}
}

// LocalPorts is where the local listeners bind, both on 127.0.0.1.
type LocalPorts struct {
	SocksPort int
	HTTPPort  int
}

// ConnectRequest is everything a connect() call needs: a target, an
// optional jump host, and the local listener ports.
type ConnectRequest struct {
	Target HostAuth
	// Jump is the zero value when no jump host is used.
	Jump           *HostAuth
	Local          LocalPorts
	KnownHostsPath string
}

// resolveJumpFallback applies the one-shot, connect-time-only jump
// credential fallback: an empty jump username/password/key path is filled
// in from the corresponding target field. This never cascades through a
// reconnect because there are none - Open is called exactly once per
// ConnectRequest.
//
// Mode is never inherited piecemeal: if the jump host has its own
// Password or KeyPath set, its own UseKey is kept as-is and the target's
// mode never leaks in. Only when the jump supplies neither credential at
// all does it fall back to the target's mode and credentials wholesale,
// UseKey included.
func (r ConnectRequest) resolveJumpFallback() HostAuth {
	j := *r.Jump
	if j.Username == "" {
		j.Username = r.Target.Username
	}
	if j.KeyPath == "" && j.Password == "" {
		// No credential set on the jump host at all: fall back to the
		// target's mode and credentials, wholesale.
		j.UseKey = r.Target.UseKey
		j.Password = r.Target.Password
		j.KeyPath = r.Target.KeyPath
		j.KeyPass = r.Target.KeyPass
	}
	return j
}
