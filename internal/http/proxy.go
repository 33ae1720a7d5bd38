// Package http builds the HTTP clients used to reach a Jobson server and
// remote file stores, honouring the configured proxy.
package http

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"

	"github.com/jobson/jobson-cli/internal/config"
	"github.com/jobson/jobson-cli/internal/logging"
)

const (
	dialTimeout           = 30 * time.Second
	dialKeepAlive         = 30 * time.Second
	idleConnTimeout       = 90 * time.Second
	tlsHandshakeTimeout   = 30 * time.Second
	expectContinueTimeout = 1 * time.Second

	// APITimeout bounds a single API round trip.
	APITimeout = 60 * time.Second

	defaultProxyPort = 8080
)

func newTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: dialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
	}
}

// ConfigureHTTPClient returns a client for API calls using the proxy settings
// in cfg. log may be nil.
func ConfigureHTTPClient(cfg *config.Config, log *logging.Logger) (*nethttp.Client, error) {
	if log == nil {
		log = logging.Nop()
	}
	transport := newTransport()

	switch strings.ToLower(cfg.ProxyMode) {
	case config.ProxyModeNone, "":
		transport.Proxy = nil

	case config.ProxyModeSystem:
		transport.Proxy = nethttp.ProxyFromEnvironment

	case config.ProxyModeNTLM, config.ProxyModeBasic:
		// An incomplete proxy section still lets `config set` run.
		if cfg.ProxyHost == "" {
			log.Warn().Str("mode", cfg.ProxyMode).Msg("Proxy host is missing, connecting directly")
			transport.Proxy = nil
			break
		}
		if cfg.ProxyUser != "" && cfg.ProxyPassword == "" {
			log.Warn().Msg("Proxy user configured but password missing, proxy auth disabled until password is set")
		}

		transport.Proxy = proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy, log)

		if strings.ToLower(cfg.ProxyMode) == config.ProxyModeNTLM {
			return &nethttp.Client{
				Transport: ntlmssp.Negotiator{RoundTripper: transport},
				Timeout:   APITimeout,
			}, nil
		}

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.ProxyMode)
	}

	return &nethttp.Client{
		Transport: transport,
		Timeout:   APITimeout,
	}, nil
}

// ProxyURL returns the proxy a websocket dialer should use for cfg, or nil
// for a direct connection.
func ProxyURL(cfg *config.Config, log *logging.Logger) func(*nethttp.Request) (*url.URL, error) {
	if log == nil {
		log = logging.Nop()
	}
	switch strings.ToLower(cfg.ProxyMode) {
	case config.ProxyModeSystem:
		return nethttp.ProxyFromEnvironment
	case config.ProxyModeBasic, config.ProxyModeNTLM:
		if cfg.ProxyHost == "" {
			return nil
		}
		return proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy, log)
	}
	return nil
}

func buildProxyURL(cfg *config.Config) *url.URL {
	port := cfg.ProxyPort
	if port == 0 {
		port = defaultProxyPort
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", cfg.ProxyHost, port),
	}

	// Some proxies reject an empty password embedded in the URL.
	if cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
		proxyURL.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
	}

	return proxyURL
}

// proxyFuncWithBypass routes requests through proxyURL unless the host matches
// the comma separated noProxy list (hosts, *.domains or CIDRs).
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string, log *logging.Logger) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			log.Debug().Str("host", req.URL.Host).Msg("Proxy bypassed")
		} else {
			log.Debug().Str("host", req.URL.Host).Str("proxy", result.Host).Msg("Proxied")
		}
		return result, err
	}
}

// NeedsProxyPassword reports whether the proxy needs a password that has not
// been provided, so the CLI can prompt for it.
func NeedsProxyPassword(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.ProxyMode)
	if mode != config.ProxyModeBasic && mode != config.ProxyModeNTLM {
		return false
	}
	return cfg.ProxyUser != "" && cfg.ProxyPassword == ""
}
