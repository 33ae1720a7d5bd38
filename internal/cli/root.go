// Package cli provides the jobson-cli command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jobson/jobson-cli/internal/config"
	"github.com/jobson/jobson-cli/internal/logging"
	"github.com/jobson/jobson-cli/internal/version"
)

var (
	// Global flags
	cfgFile   string
	serverURL string
	username  string
	password  string
	verbose   bool
	debug     bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jobson-cli",
		Short: "Submit and inspect jobs on a Jobson server",
		Long: `jobson-cli ` + version.String() + `
Command-line client for Jobson job servers.

Browse the job specs a server offers, build job requests against them
(interactively or from flags and files), submit them and follow the
resulting jobs.

Connection settings come from, in order of priority:
  1. Flags (--url, --username, --password)
  2. Environment (JOBSON_URL, JOBSON_USERNAME, JOBSON_PASSWORD)
  3. Config file (~/.config/jobson/config)
  4. Default (http://localhost:8080/api)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogger(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "Jobson API URL, e.g. http://localhost:8080/api (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "Username for HTTP basic auth (overrides config)")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Password for HTTP basic auth (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.String()

	return rootCmd
}

// initLogger sets up console and file logging from the config file. Loading
// errors are left for the command to report.
func initLogger(cmd *cobra.Command) error {
	var opts logging.Options
	opts.Console = cmd.ErrOrStderr()
	level := zerolog.InfoLevel

	if cfg, err := loadConfig(); err == nil {
		if opts.File, err = config.ResolveLogFile(cfg.LogFile); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: cannot use log file %s: %v\n", cfg.LogFile, err)
		}
		if l, err := logging.ParseLevel(cfg.LogLevel); err == nil {
			level = l
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v, using info\n", err)
		}
	}
	if verbose || debug {
		level = zerolog.DebugLevel
	}

	logger = logging.New(opts)
	logging.SetGlobalLevel(level)
	return nil
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.ExecuteContext(rootContext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err))
	}

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newSpecsCmd())
	rootCmd.AddCommand(newJobsCmd())
	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newMockServerCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the context of cmd, which Execute cancels on Ctrl+C.
func GetContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
