package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobson/jobson-cli/internal/config"
	"github.com/jobson/jobson-cli/internal/prompt"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage jobson-cli configuration",
		Long: `Configuration management commands for jobson-cli.

Commands:
  init  - Create the configuration file
  show  - Display current configuration
  test  - Test the server connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns the --config path or the default one.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var (
		force       bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the configuration file",
		Long: `Create the configuration file, asking for the server URL and credentials.

Without a terminal, or with --interactive=false, the values come from the
global flags (--url, --username, --password) and the environment.

Use --force to overwrite an existing configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at: %s\n", path)
					fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if !cmd.Flags().Changed("interactive") {
				interactive = prompt.IsInteractive()
			}
			if interactive {
				driver, err := prompt.NewTerminalDriver()
				if err != nil {
					return err
				}
				if err := askConfig(GetContext(cmd), driver, cfg); err != nil {
					if errors.Is(err, prompt.ErrAborted) {
						fmt.Fprintln(cmd.ErrOrStderr(), "Configuration not saved.")
						return nil
					}
					return err
				}
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := cfg.Save(path); err != nil {
				return err
			}
			GetLogger().Info().Str("path", path).Msg("Configuration saved")

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to: %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Test it with: jobson-cli config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "Ask for the values (default when running in a terminal)")

	return cmd
}

// askConfig fills cfg from the user's answers, offering its current values
// as defaults.
func askConfig(ctx context.Context, d prompt.Driver, cfg *config.Config) error {
	var err error
	ask := func(dst *string, ic prompt.InputConfig) {
		if err != nil {
			return
		}
		var v string
		if v, err = d.Input(ctx, ic); err == nil {
			*dst = strings.TrimSpace(v)
		}
	}

	ask(&cfg.URL, prompt.InputConfig{
		Message: "Jobson API URL:",
		Default: cfg.URL,
		Validator: func(s string) error {
			c := *cfg
			c.URL = strings.TrimSpace(s)
			return c.ValidateForConnection()
		},
	})
	ask(&cfg.Username, prompt.InputConfig{Message: "Username (empty for none):", Default: cfg.Username})
	if err != nil {
		return err
	}
	if cfg.Username != "" {
		pw, err := d.Password(ctx, prompt.InputConfig{Message: "Password (empty keeps the current one):"})
		if err != nil {
			return err
		}
		if pw != "" {
			cfg.Password = pw
		}
	}

	useProxy, err := d.Confirm(ctx, prompt.ConfirmConfig{
		Message: "Configure a proxy?",
		Default: cfg.ProxyMode != "" && cfg.ProxyMode != config.ProxyModeNone,
	})
	if err != nil {
		return err
	}
	if !useProxy {
		cfg.ProxyMode = config.ProxyModeNone
		return nil
	}

	modes := []string{config.ProxyModeSystem, config.ProxyModeBasic, config.ProxyModeNTLM}
	i, err := d.Select(ctx, prompt.SelectConfig{Message: "Proxy mode:", Options: modes})
	if err != nil {
		return err
	}
	if i < 0 {
		i = 0
	}
	cfg.ProxyMode = modes[i]
	if cfg.ProxyMode == config.ProxyModeSystem {
		return nil
	}

	ask(&cfg.ProxyHost, prompt.InputConfig{Message: "Proxy host:", Default: cfg.ProxyHost})
	port := "8080"
	if cfg.ProxyPort > 0 {
		port = strconv.Itoa(cfg.ProxyPort)
	}
	ask(&port, prompt.InputConfig{
		Message: "Proxy port:",
		Default: port,
		Validator: func(s string) error {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err != nil || n <= 0 || n > 65535 {
				return errors.New("enter a port between 1 and 65535")
			}
			return nil
		},
	})
	ask(&cfg.ProxyUser, prompt.InputConfig{Message: "Proxy user (empty for none):", Default: cfg.ProxyUser})
	if err != nil {
		return err
	}
	cfg.ProxyPort, _ = strconv.Atoi(port)
	if cfg.ProxyUser != "" {
		pw, err := d.Password(ctx, prompt.InputConfig{Message: "Proxy password:"})
		if err != nil {
			return err
		}
		if pw != "" {
			cfg.ProxyPassword = pw
		}
	}
	return nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings. Secrets are masked.

This command shows the merged configuration from:
  1. Configuration file (~/.config/jobson/config)
  2. Environment variables (JOBSON_URL, JOBSON_USERNAME, JOBSON_PASSWORD)
  3. Command-line flags (--url, --username, --password)

Priority: flags > environment > config file > defaults`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			path, err := configPath()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg.Redacted(), path)
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config, path string) {
	orNone := func(s string) string {
		if s == "" {
			return "<not set>"
		}
		return s
	}

	fmt.Fprintln(w, "Server:")
	fmt.Fprintf(w, "  URL:      %s\n", cfg.URL)
	fmt.Fprintf(w, "  Username: %s\n", orNone(cfg.Username))
	fmt.Fprintf(w, "  Password: %s\n", orNone(cfg.Password))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy:")
	fmt.Fprintf(w, "  Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  Host: %s:%d\n", cfg.ProxyHost, cfg.ProxyPort)
		fmt.Fprintf(w, "  User: %s\n", orNone(cfg.ProxyUser))
	}
	if cfg.NoProxy != "" {
		fmt.Fprintf(w, "  No proxy: %s\n", cfg.NoProxy)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Logging:")
	fmt.Fprintf(w, "  Level: %s\n", cfg.LogLevel)
	fmt.Fprintf(w, "  File:  %s\n", orNone(cfg.LogFile))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Storage:")
	fmt.Fprintf(w, "  AWS region:  %s\n", orNone(cfg.AWSRegion))
	fmt.Fprintf(w, "  AWS profile: %s\n", orNone(cfg.AWSProfile))
	fmt.Fprintf(w, "  AWS keys:    %s\n", orNone(cfg.AWSSecretAccessKey))
	fmt.Fprintf(w, "  S3 endpoint: %s\n", orNone(cfg.S3Endpoint))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(w, "  (file does not exist - using defaults)")
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the server connection",
		Long: `Test the connection to the Jobson server with the current configuration.

Use this to verify the URL, credentials and proxy settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, cfg, err := getAPIClient(nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server: %s\n", cfg.URL)

			ctx, cancel := context.WithTimeout(GetContext(cmd), 10*time.Second)
			defer cancel()

			user, err := apiClient.FetchCurrentUser(ctx)
			if err != nil {
				GetLogger().Error().Err(err).Msg("Connection test failed")
				return fmt.Errorf("connection test failed: %w", err)
			}
			GetLogger().Debug().Str("user", user).Msg("Connection test successful")

			fmt.Fprintln(cmd.OutOrStdout(), "Connection successful")
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as: %s\n", user)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
