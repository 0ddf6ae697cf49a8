// Package cmd provides the command-line interface for the tunnel tool.
//
// This package implements the CLI commands using the Cobra library, handling
// configuration loading, command parsing, and tunnel manager lifecycle.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sshtun/internal/tunnel"
	"sshtun/pkg/config"

	"github.com/spf13/cobra"
)

const (
	defaultSSHPort   = 22
	defaultSocksPort = 10800
	defaultHTTPPort  = 10801
)

var rootCmd = &cobra.Command{
	Use:     "sshtun",
	Short:   "Secure SSH tunnel with local SOCKS5 and HTTP proxy listeners",
	Version: "v0.1.0",
	RunE:    runConnect,
}

var connectFlags struct {
	configPath string

	targetHost   string
	targetPort   int
	targetUser   string
	targetUseKey bool
	targetPass   string
	targetKey    string

	jumpHost   string
	jumpPort   int
	jumpUser   string
	jumpUseKey bool
	jumpPass   string
	jumpKey    string

	socksPort int
	httpPort  int

	knownHosts string
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&connectFlags.configPath, "config", "c", "", "config file path (individual flags that are passed override its values)")

	rootCmd.Flags().StringVar(&connectFlags.targetHost, "target-host", "", "target SSH server host")
	rootCmd.Flags().IntVar(&connectFlags.targetPort, "target-port", 22, "target SSH server port")
	rootCmd.Flags().StringVarP(&connectFlags.targetUser, "target-user", "u", "", "target SSH username")
	rootCmd.Flags().BoolVar(&connectFlags.targetUseKey, "target-use-key", false, "authenticate to the target with --target-key instead of --target-pass")
	rootCmd.Flags().StringVarP(&connectFlags.targetPass, "target-pass", "p", "", "target SSH password")
	rootCmd.Flags().StringVar(&connectFlags.targetKey, "target-key", "", "target SSH private key file")

	rootCmd.Flags().StringVar(&connectFlags.jumpHost, "jump-host", "", "jump SSH server host (optional)")
	rootCmd.Flags().IntVar(&connectFlags.jumpPort, "jump-port", 22, "jump SSH server port")
	rootCmd.Flags().StringVar(&connectFlags.jumpUser, "jump-user", "", "jump SSH username (falls back to target-user)")
	rootCmd.Flags().BoolVar(&connectFlags.jumpUseKey, "jump-use-key", false, "authenticate to the jump host with --jump-key instead of --jump-pass")
	rootCmd.Flags().StringVar(&connectFlags.jumpPass, "jump-pass", "", "jump SSH password")
	rootCmd.Flags().StringVar(&connectFlags.jumpKey, "jump-key", "", "jump SSH private key file")

	rootCmd.Flags().IntVar(&connectFlags.socksPort, "socks-port", 10800, "local SOCKS5 listener port")
	rootCmd.Flags().IntVar(&connectFlags.httpPort, "http-port", 10801, "local HTTP proxy listener port")
	rootCmd.Flags().StringVar(&connectFlags.knownHosts, "known-hosts", "", "known_hosts file for host key verification (empty = trust on first use)")
}

// Execute runs the root command. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runConnect(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(cmd)
	if err != nil {
		return err
	}

	manager := &tunnel.TunnelManager{
		OnLog: func(msg string) { fmt.Printf("→ %s\n", msg) },
		OnStatusChanged: func(s tunnel.Status) {
			switch s.Kind {
			case tunnel.Connecting:
				fmt.Println("→ connecting...")
			case tunnel.Connected:
				fmt.Printf("✓ connected to %s\n", s.Detail)
			case tunnel.Disconnected:
				if s.Detail != "" {
					fmt.Printf("✗ disconnected: %s\n", s.Detail)
				} else {
					fmt.Println("✗ disconnected")
				}
			}
		},
	}

	ctx := context.Background()
	if err := manager.Connect(ctx, req); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}

	fmt.Printf("✓ SOCKS5 proxy on 127.0.0.1:%d, HTTP proxy on 127.0.0.1:%d\n", req.Local.SocksPort, req.Local.HTTPPort)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	waitForShutdown(manager)
	return nil
}

func waitForShutdown(manager *tunnel.TunnelManager) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\n→ shutdown signal received, closing tunnel...")
	manager.Disconnect()
	fmt.Println("✓ tunnel closed")
	time.Sleep(50 * time.Millisecond)
}

// buildRequest assembles a ConnectRequest from --config (if given) and
// individual flags, flags taking precedence over whatever the config file
// set, but only for flags the user actually passed - flags like
// --target-port carry a non-zero default that would otherwise silently
// overwrite a config file's value on every run.
func buildRequest(cmd *cobra.Command) (tunnel.ConnectRequest, error) {
	var req tunnel.ConnectRequest
	changed := cmd.Flags().Changed

	if connectFlags.configPath != "" {
		cfg, err := config.Load(connectFlags.configPath)
		if err != nil {
			return req, fmt.Errorf("loading config: %w", err)
		}
		req = requestFromConfig(cfg)
	} else {
		req.Local = tunnel.LocalPorts{SocksPort: connectFlags.socksPort, HTTPPort: connectFlags.httpPort}
	}

	if changed("target-host") {
		req.Target.Host = connectFlags.targetHost
	}
	if changed("target-port") {
		req.Target.Port = connectFlags.targetPort
	}
	if changed("target-user") {
		req.Target.Username = connectFlags.targetUser
	}
	if changed("target-use-key") {
		req.Target.UseKey = connectFlags.targetUseKey
	}
	if changed("target-pass") {
		req.Target.Password = connectFlags.targetPass
	}
	if changed("target-key") {
		req.Target.KeyPath = connectFlags.targetKey
	}

	if changed("jump-host") {
		if req.Jump == nil {
			req.Jump = &tunnel.HostAuth{}
		}
		req.Jump.Host = connectFlags.jumpHost
	}
	if req.Jump != nil {
		if changed("jump-port") {
			req.Jump.Port = connectFlags.jumpPort
		}
		if changed("jump-user") {
			req.Jump.Username = connectFlags.jumpUser
		}
		if changed("jump-use-key") {
			req.Jump.UseKey = connectFlags.jumpUseKey
		}
		if changed("jump-pass") {
			req.Jump.Password = connectFlags.jumpPass
		}
		if changed("jump-key") {
			req.Jump.KeyPath = connectFlags.jumpKey
		}
	}

	if changed("socks-port") {
		req.Local.SocksPort = connectFlags.socksPort
	}
	if changed("http-port") {
		req.Local.HTTPPort = connectFlags.httpPort
	}
	if changed("known-hosts") {
		req.KnownHostsPath = connectFlags.knownHosts
	}

	if req.Target.Host == "" {
		return req, fmt.Errorf("target host is required (--target-host or --config)")
	}
	if req.Target.Username == "" {
		return req, fmt.Errorf("target username is required (--target-user or --config)")
	}

	if req.Target.Port == 0 {
		req.Target.Port = defaultSSHPort
	}
	if req.Jump != nil && req.Jump.Port == 0 {
		req.Jump.Port = defaultSSHPort
	}
	if req.Local.SocksPort == 0 {
		req.Local.SocksPort = defaultSocksPort
	}
	if req.Local.HTTPPort == 0 {
		req.Local.HTTPPort = defaultHTTPPort
	}

	return req, nil
}

func requestFromConfig(cfg *config.Config) tunnel.ConnectRequest {
	req := tunnel.ConnectRequest{
		Target: tunnel.HostAuth{
			Host:     cfg.Target.Host,
			Port:     cfg.Target.Port,
			Username: cfg.Target.Username,
			UseKey:   cfg.Target.UseKey,
			Password: cfg.Target.Password,
			KeyPath:  cfg.Target.KeyPath,
			KeyPass:  cfg.Target.KeyPass,
		},
		Local: tunnel.LocalPorts{
			SocksPort: cfg.SocksPort,
			HTTPPort:  cfg.HTTPPort,
		},
		KnownHostsPath: cfg.KnownHostsPath,
	}
	if cfg.Jump != nil {
		req.Jump = &tunnel.HostAuth{
			Host:     cfg.Jump.Host,
			Port:     cfg.Jump.Port,
			Username: cfg.Jump.Username,
			UseKey:   cfg.Jump.UseKey,
			Password: cfg.Jump.Password,
			KeyPath:  cfg.Jump.KeyPath,
			KeyPass:  cfg.Jump.KeyPass,
		}
	}
	return req
}
