package sshsession

import (
	"fmt"

	"github.com/skeema/knownhosts"
	"golang.org/x/crypto/ssh"
)

// hostKeyCallback returns the host key verification policy to use. With no
// known_hosts path this stays at the trust-on-first-use floor
// (ssh.InsecureIgnoreHostKey); supplying a path upgrades to real
// known_hosts verification, the hardening the core invites without
// mandating. With a path set, a host missing from the file is rejected;
// nothing is ever written to the file.
func hostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	db, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts %s: %w", knownHostsPath, err)
	}
	return db.HostKeyCallback(), nil
}
