package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"sshtun/pkg/config"

	"github.com/spf13/cobra"
)

// configCmd groups configuration-file utilities.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Utilities for generating and validating connect configuration files.`,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a sample configuration file",
	Run:   generateConfigFile,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Run:   validateConfigFile,
}

var configFlags struct {
	output string
	path   string
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(generateCmd)
	configCmd.AddCommand(validateCmd)

	generateCmd.Flags().StringVarP(&configFlags.output, "output", "o", "tunnel-config.json", "output file path")

	validateCmd.Flags().StringVarP(&configFlags.path, "config", "c", "", "path to configuration file to validate (required)")
	validateCmd.MarkFlagRequired("config")
}

func generateConfigFile(cmd *cobra.Command, args []string) {
	sample := config.Config{
		Target: config.HostConfig{
			Host:     "target.example.com",
			Port:     22,
			Username: "user",
			Password: "password",
		},
		SocksPort: 10800,
		HTTPPort:  10801,
	}

	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		fmt.Printf("✗ failed to marshal config: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(configFlags.output, data, 0o644); err != nil {
		fmt.Printf("✗ failed to write config file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ sample configuration written: %s\n", configFlags.output)
	fmt.Println("  edit target host/credentials, add a \"jump\" block if needed, then:")
	fmt.Println("  sshtun config validate --config", configFlags.output)
}

func validateConfigFile(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFlags.path)
	if err != nil {
		fmt.Printf("✗ configuration validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ configuration file is valid: %s\n", configFlags.path)
	fmt.Printf("  target: %s:%d (user %s)\n", cfg.Target.Host, cfg.Target.Port, cfg.Target.Username)
	if cfg.Jump != nil {
		fmt.Printf("  jump:   %s:%d\n", cfg.Jump.Host, cfg.Jump.Port)
	}
	fmt.Printf("  local:  socks=%d http=%d\n", cfg.SocksPort, cfg.HTTPPort)
}
