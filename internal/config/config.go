// Package config provides configuration management for the Jobson CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// DefaultURL is the API root used when nothing else is configured.
const DefaultURL = "http://localhost:8080/api"

// Environment variables that override the config file.
const (
	EnvURL      = "JOBSON_URL"
	EnvUsername = "JOBSON_USERNAME"
	EnvPassword = "JOBSON_PASSWORD"
)

// Proxy modes.
const (
	ProxyModeNone   = "no-proxy"
	ProxyModeSystem = "system"
	ProxyModeBasic  = "basic"
	ProxyModeNTLM   = "ntlm"
)

// Config holds everything needed to talk to a Jobson server.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\jobson\config
//   - Unix: ~/.config/jobson/config
//
// INI format:
//
//	[jobson]
//	url = http://localhost:8080/api
//	username = alice
//	password = secret
//
//	[proxy]
//	mode = basic
//	host = proxy.corp
//	port = 3128
//	user = alice
//	password = secret
//	no_proxy = localhost,10.0.0.0/8
//
//	[logging]
//	file = /var/log/jobson-cli.log
//	level = info
//
//	[storage]
//	aws_region = eu-west-1
//	aws_profile = default
//	s3_endpoint = http://minio.local:9000
type Config struct {
	// Server connection
	URL      string
	Username string
	Password string

	// Proxy settings
	ProxyMode     string
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string

	// Logging
	LogFile  string
	LogLevel string

	// Credentials used to read s3:// file inputs. Empty keys fall back to the
	// AWS default credential chain.
	AWSRegion          string
	AWSProfile         string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// S3Endpoint points s3:// inputs at an S3-compatible store.
	S3Endpoint string
}

// Validation errors
var (
	ErrMissingURL        = errors.New("url is required")
	ErrInvalidURL        = errors.New("url must be an absolute http or https URL")
	ErrInvalidProxyMode  = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost  = errors.New("proxy host is required for basic and ntlm proxy modes")
	ErrInvalidProxyPort  = errors.New("proxy port must be between 0 and 65535")
	ErrIncompleteAWSKeys = errors.New("aws_access_key_id and aws_secret_access_key must be set together")
)

// New returns a config with default values.
func New() *Config {
	return &Config{
		URL:       DefaultURL,
		ProxyMode: ProxyModeNone,
		LogLevel:  "info",
	}
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	var home string
	if runtime.GOOS == "windows" {
		home = os.Getenv("USERPROFILE")
		if home == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
	} else {
		h, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		home = h
	}
	return filepath.Join(home, ".config", "jobson", "config"), nil
}

// Load reads the config file at path, or the default path when empty.
// A missing file yields the defaults and no error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	server := iniFile.Section("jobson")
	cfg.URL = server.Key("url").MustString(cfg.URL)
	cfg.Username = server.Key("username").String()
	cfg.Password = server.Key("password").String()

	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(0)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.ProxyPassword = proxy.Key("password").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()

	logging := iniFile.Section("logging")
	cfg.LogFile = logging.Key("file").String()
	cfg.LogLevel = logging.Key("level").MustString(cfg.LogLevel)

	storage := iniFile.Section("storage")
	cfg.AWSRegion = storage.Key("aws_region").String()
	cfg.AWSProfile = storage.Key("aws_profile").String()
	cfg.AWSAccessKeyID = storage.Key("aws_access_key_id").String()
	cfg.AWSSecretAccessKey = storage.Key("aws_secret_access_key").String()
	cfg.S3Endpoint = storage.Key("s3_endpoint").String()

	return cfg, nil
}

// ApplyEnv overrides connection settings from the environment. lookup is
// usually os.LookupEnv.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvURL); ok && v != "" {
		cfg.URL = v
	}
	if v, ok := lookup(EnvUsername); ok && v != "" {
		cfg.Username = v
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		cfg.Password = v
	}
}

// Save writes the config to path, or the default path when empty. The file
// holds credentials and is only readable by its owner.
func (cfg *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	sections := []struct {
		name string
		keys [][2]string
	}{
		{"jobson", [][2]string{
			{"url", cfg.URL},
			{"username", cfg.Username},
			{"password", cfg.Password},
		}},
		{"proxy", [][2]string{
			{"mode", cfg.ProxyMode},
			{"host", cfg.ProxyHost},
			{"port", strconv.Itoa(cfg.ProxyPort)},
			{"user", cfg.ProxyUser},
			{"password", cfg.ProxyPassword},
			{"no_proxy", cfg.NoProxy},
		}},
		{"logging", [][2]string{
			{"file", cfg.LogFile},
			{"level", cfg.LogLevel},
		}},
		{"storage", [][2]string{
			{"aws_region", cfg.AWSRegion},
			{"aws_profile", cfg.AWSProfile},
			{"aws_access_key_id", cfg.AWSAccessKeyID},
			{"aws_secret_access_key", cfg.AWSSecretAccessKey},
			{"s3_endpoint", cfg.S3Endpoint},
		}},
	}
	for _, s := range sections {
		section, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.keys {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the whole configuration.
func (cfg *Config) Validate() error {
	if err := cfg.ValidateForConnection(); err != nil {
		return err
	}
	if (cfg.AWSAccessKeyID == "") != (cfg.AWSSecretAccessKey == "") {
		return ErrIncompleteAWSKeys
	}
	return nil
}

// ValidateForConnection checks only what is needed to reach the server.
func (cfg *Config) ValidateForConnection() error {
	if strings.TrimSpace(cfg.URL) == "" {
		return ErrMissingURL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, cfg.URL)
	}

	switch strings.ToLower(cfg.ProxyMode) {
	case "", ProxyModeNone, ProxyModeSystem:
	case ProxyModeBasic, ProxyModeNTLM:
		if strings.TrimSpace(cfg.ProxyHost) == "" {
			return ErrMissingProxyHost
		}
	default:
		return fmt.Errorf("%w (got %q)", ErrInvalidProxyMode, cfg.ProxyMode)
	}
	if cfg.ProxyPort < 0 || cfg.ProxyPort > 65535 {
		return ErrInvalidProxyPort
	}
	return nil
}

// Redacted returns a copy with every secret masked, for display.
func (cfg *Config) Redacted() *Config {
	c := *cfg
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Password = mask(c.Password)
	c.ProxyPassword = mask(c.ProxyPassword)
	c.AWSSecretAccessKey = mask(c.AWSSecretAccessKey)
	return &c
}
