// Package main provides the entry point for the SSH tunnel tool.
//
// It establishes a secure tunnel to a remote SSH server, optionally through
// a jump host, and exposes local SOCKS5 and HTTP forward proxy listeners
// that forward application traffic through it.
//
// Usage:
//
//	sshtun --target-host example.com --target-user alice --target-pass secret
//	sshtun --config config.json
//	sshtun config generate --output config.json
//	sshtun config validate --config config.json
package main

import "sshtun/cmd"

func main() {
	cmd.Execute()
}
