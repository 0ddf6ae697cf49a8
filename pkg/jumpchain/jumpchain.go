// Package jumpchain composes two sshsession.Sessions so the target session
// is reached by tunneling its handshake through a direct-tcpip channel
// opened on the jump session.
package jumpchain

import (
	"context"
	"fmt"
	"time"

	"sshtun/pkg/sshsession"
)

const jumpChannelTimeout = 20 * time.Second

// Open connects to jumpEp first, then opens a direct-tcpip channel on it to
// targetEp and runs the target handshake over that channel. knownHostsPath,
// if non-empty, applies to both hops. Auth failures against the target are
// always labeled "target" even though the attempt happens after a
// successful jump hop, so callers never see "jump auth failed" for what is
// really a target credential problem.
func Open(ctx context.Context, jumpEp sshsession.Endpoint, jumpAuth sshsession.Auth,
	targetEp sshsession.Endpoint, targetAuth sshsession.Auth, knownHostsPath string, onLog func(string)) (target, jump *sshsession.Session, err error) {

	jump = &sshsession.Session{OnLog: onLog, KnownHostsPath: knownHostsPath}
	if err := jump.Open(ctx, jumpEp, jumpAuth, nil, "jump"); err != nil {
		return nil, nil, err
	}

	channel, err := jump.OpenChannel(ctx, targetEp.Host, targetEp.Port, jumpChannelTimeout)
	if err != nil {
		jump.Close()
		return nil, nil, fmt.Errorf("jump to target forwarding failed (check jump host AllowTcpForwarding): %w", err)
	}

	target = &sshsession.Session{OnLog: onLog, KnownHostsPath: knownHostsPath}
	if err := target.Open(ctx, targetEp, targetAuth, channel, "target"); err != nil {
		channel.Close()
		jump.Close()
		return nil, nil, err
	}

	return target, jump, nil
}
