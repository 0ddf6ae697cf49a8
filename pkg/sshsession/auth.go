package sshsession

import (
	"bytes"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// acceptedKeyHeaders are the PEM markers of a private key this loader will
// attempt to parse. Anything else is rejected before it ever reaches the
// ssh package, so a wrong file produces a clear message instead of an
// opaque parse error.
var acceptedKeyHeaders = []string{
	"BEGIN OPENSSH PRIVATE KEY",
	"BEGIN RSA PRIVATE KEY",
	"BEGIN EC PRIVATE KEY",
	"BEGIN DSA PRIVATE KEY",
	"BEGIN PRIVATE KEY",
}

// precheckKey rejects the common wrong-file mistakes before attempting to
// parse: a public key handed in by accident, a PuTTY .ppk export, or plain
// public-key text. Ported from the original implementation's _precheck_key
// in spirit, not in code - the ssh package tells us the key type from its
// PEM header, so there is no "which loader class" decision to make here.
func precheckKey(path string) error {
	if strings.HasSuffix(strings.ToLower(path), ".pub") {
		return &KeyError{Path: path, Reason: "this is a public key (.pub); choose the matching private key file"}
	}

	head, err := os.ReadFile(path)
	if err != nil {
		return &KeyError{Path: path, Reason: "cannot read file", Err: err}
	}
	if len(head) > 256 {
		head = head[:256]
	}

	if bytes.Contains(head, []byte("PuTTY-User-Key-File-")) {
		return &KeyError{Path: path, Reason: "this is a PuTTY .ppk file; convert it to OpenSSH format first"}
	}

	for _, marker := range acceptedKeyHeaders {
		if bytes.Contains(head, []byte(marker)) {
			return nil
		}
	}

	if bytes.HasPrefix(head, []byte("ssh-")) || bytes.HasPrefix(head, []byte("ecdsa-")) {
		return &KeyError{Path: path, Reason: "this file looks like public key text; choose the private key file"}
	}

	return &KeyError{Path: path, Reason: "unrecognized private key format"}
}

// loadPrivateKey validates and parses a private key file into a signer.
//
// golang.org/x/crypto/ssh dispatches on the PEM header itself, so unlike a
// loader that must try Ed25519, RSA, ECDSA and DSA key classes in turn,
// there is a single parse call here; a missing passphrase gets its own
// distinct error rather than folding into the generic parse failure.
func loadPrivateKey(path, passphrase string) (ssh.Signer, error) {
	if path == "" {
		return nil, &KeyError{Path: path, Reason: "no private key file provided"}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &KeyError{Path: path, Reason: "file does not exist", Err: err}
	}
	if err := precheckKey(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &KeyError{Path: path, Reason: "cannot read file", Err: err}
	}

	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
		if err != nil {
			return nil, &KeyError{Path: path, Reason: "cannot parse key (wrong passphrase or unsupported format)", Err: err}
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		if _, ok := err.(*ssh.PassphraseMissingError); ok {
			return nil, &KeyError{Path: path, Reason: "key requires a passphrase"}
		}
		return nil, &KeyError{Path: path, Reason: "cannot parse key", Err: err}
	}
	return signer, nil
}
