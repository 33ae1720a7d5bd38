package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobson/jobson-cli/internal/mockserver"
	"github.com/jobson/jobson-cli/internal/models"
)

// mockServerOptions holds the flags of the mock-server command.
type mockServerOptions struct {
	addr        string
	dbPath      string
	specsDir    string
	basePath    string
	stepDelay   time.Duration
	idleTimeout time.Duration
	users       []string
}

// newMockServerCmd creates the 'mock-server' command.
func newMockServerCmd() *cobra.Command {
	var opts mockServerOptions

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run a local Jobson API server for trying the client",
		Long: `Run a local server that speaks the Jobson API.

Jobs do not execute anything: each one moves through submitted, running and
finished, writing a description of its inputs to stdout. Jobs are kept in a
SQLite database, in memory unless --db names a file.

Without --specs the server offers two built-in job specs. With --specs it
loads every .json, .yml and .yaml file under the directory.

Examples:
  jobson-cli mock-server
  jobson-cli mock-server --addr :9090 --specs ./specs --db jobs.db
  jobson-cli mock-server --user alice:secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMockServer(GetContext(cmd), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "Address to listen on")
	cmd.Flags().StringVar(&opts.dbPath, "db", ":memory:", "SQLite database file for jobs")
	cmd.Flags().StringVar(&opts.specsDir, "specs", "", "Directory of job spec files (default: built-in demo specs)")
	cmd.Flags().StringVar(&opts.basePath, "base-path", mockserver.DefaultBasePath, "Path prefix of the API")
	cmd.Flags().DurationVar(&opts.stepDelay, "step-delay", 2*time.Second, "Time a job spends in each status")
	cmd.Flags().DurationVar(&opts.idleTimeout, "idle-timeout", 30*time.Second, "Close silent websocket subscriptions after this long")
	cmd.Flags().StringArrayVar(&opts.users, "user", nil, "Require basic auth, accepting name:password (repeatable)")

	return cmd
}

func runMockServer(ctx context.Context, cmd *cobra.Command, opts mockServerOptions) error {
	log := GetLogger()

	var (
		specs []models.JobSpec
		err   error
	)
	if opts.specsDir != "" {
		specs, err = mockserver.LoadSpecs(os.DirFS(opts.specsDir))
	} else {
		specs, err = mockserver.DemoSpecs()
	}
	if err != nil {
		return fmt.Errorf("failed to load job specs: %w", err)
	}

	users, err := parseUsers(opts.users)
	if err != nil {
		return err
	}

	store, err := mockserver.OpenStore(opts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	srv, err := mockserver.New(store, mockserver.Options{
		Specs:       specs,
		Users:       users,
		BasePath:    opts.basePath,
		StepDelay:   opts.stepDelay,
		IdleTimeout: opts.idleTimeout,
	}, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	log.Info().Str("addr", opts.addr).Int("specs", len(specs)).Str("db", opts.dbPath).Msg("Mock server listening")
	fmt.Fprintf(cmd.ErrOrStderr(), "Serving the Jobson API at http://%s%s (Ctrl+C to stop)\n", displayAddr(opts.addr), strings.TrimSuffix(opts.basePath, "/"))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mock server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Shutdown does not wait for websocket subscriptions; srv.Close ends them.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down mock server: %w", err)
	}
	log.Info().Msg("Mock server stopped")
	return nil
}

// parseUsers turns name:password pairs into a user map.
func parseUsers(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	users := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, pw, ok := strings.Cut(p, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("--user %q: expected name:password", p)
		}
		users[name] = pw
	}
	return users, nil
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
