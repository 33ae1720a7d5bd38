package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jobson/jobson-cli/internal/api"
	"github.com/jobson/jobson-cli/internal/config"
	"github.com/jobson/jobson-cli/internal/events"
	"github.com/jobson/jobson-cli/internal/http"
	"github.com/jobson/jobson-cli/internal/prompt"
	"github.com/jobson/jobson-cli/internal/render"
)

// loadConfig reads the config file and applies the environment and the
// global flags on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	if serverURL != "" {
		cfg.URL = serverURL
	}
	if username != "" {
		cfg.Username = username
	}
	if password != "" {
		cfg.Password = password
	}
	return cfg, nil
}

// getAPIClient loads the configuration and creates an API client. bus, when
// not nil, receives the pending request count.
func getAPIClient(bus *events.EventBus) (*api.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateForConnection(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if http.NeedsProxyPassword(cfg) && prompt.IsInteractive() {
		if err := askProxyPassword(cfg); err != nil {
			return nil, nil, err
		}
	}

	client, err := api.NewClient(cfg, api.NewRequestTracker(bus), GetLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, cfg, nil
}

// askProxyPassword asks for the proxy password the config file leaves out.
func askProxyPassword(cfg *config.Config) error {
	driver, err := prompt.NewTerminalDriver()
	if err != nil {
		return err
	}
	ctx := rootContext
	if ctx == nil {
		ctx = context.Background()
	}
	pw, err := driver.Password(ctx, prompt.InputConfig{
		Message: fmt.Sprintf("Password for proxy user %s:", cfg.ProxyUser),
	})
	if err != nil {
		return fmt.Errorf("proxy password: %w", err)
	}
	cfg.ProxyPassword = pw
	return nil
}

// errorMessage formats a command error for the terminal.
func errorMessage(err error) string {
	return render.Error(err)
}
