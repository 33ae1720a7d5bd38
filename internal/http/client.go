package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/jobson/jobson-cli/internal/config"
	"github.com/jobson/jobson-cli/internal/logging"
)

// CreateTransferClient returns a client for downloading file inputs from S3
// or Azure Blob Storage. It shares the proxy settings of the API client but
// has no overall timeout; callers bound each transfer with a context.
//
// HTTP/2 is disabled when a proxy is active unless FORCE_HTTP2=true, and can
// be turned off entirely with DISABLE_HTTP2=true.
func CreateTransferClient(cfg *config.Config, log *logging.Logger) (*nethttp.Client, error) {
	baseClient, err := ConfigureHTTPClient(cfg, log)
	if err != nil {
		return nil, err
	}
	baseClient.Timeout = 0

	// NTLM wraps the transport; leave it alone.
	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		return baseClient, nil
	}

	tr.MaxIdleConns = 256
	tr.MaxIdleConnsPerHost = 64
	tr.MaxConnsPerHost = 64
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true") {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	return baseClient, nil
}

func proxyActive(cfg *config.Config) bool {
	switch cfg.ProxyMode {
	case config.ProxyModeNone, "":
		return false
	case config.ProxyModeSystem:
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return cfg.ProxyHost != ""
	}
}
