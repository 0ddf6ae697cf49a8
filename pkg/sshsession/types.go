// Package sshsession wraps golang.org/x/crypto/ssh into the session/channel
// contract the proxy listeners and jump chain build on: an explicit,
// non-inferred authentication mode and a direct-tcpip channel opener that
// controls its own originator address and timeout.
package sshsession

import "golang.org/x/crypto/ssh"

// Endpoint identifies an SSH server to connect to.
type Endpoint struct {
	Host     string
	Port     int
	Username string
}

// Auth is a tagged authentication value: exactly one concrete type is
// chosen by the caller, there is no field whose mere presence flips the
// mode. Sealed to this package so the two types below, PasswordAuth and
// KeyAuth, are the only implementations.
type Auth interface {
	sshAuthMethod() (ssh.AuthMethod, error)
}

// PasswordAuth authenticates with a plaintext password.
type PasswordAuth struct {
	Secret string
}

func (a PasswordAuth) sshAuthMethod() (ssh.AuthMethod, error) {
	return ssh.Password(a.Secret), nil
}

// KeyAuth authenticates with a private key file, optionally protected by a
// passphrase. Supplying Path never falls back to password auth and
// supplying a Passphrase alone never implies KeyAuth - the caller picks one
// of PasswordAuth or KeyAuth explicitly.
type KeyAuth struct {
	Path       string
	Passphrase string
}

func (a KeyAuth) sshAuthMethod() (ssh.AuthMethod, error) {
	signer, err := loadPrivateKey(a.Path, a.Passphrase)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}
