// Package http builds the HTTP clients used by remote catalogs: a tuned
// transport with proxy support for the cloud SDKs, and a retrying client for
// plain HTTP protocols such as WebDAV.
package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/rescale/brocoli/internal/constants"
	"github.com/rescale/brocoli/internal/logging"
)

// CreateOptimizedClient creates an HTTP client tuned for large file transfers
// with proxy support.
//
// Key features:
//   - Proxy support (ConfigureHTTPClient as base)
//   - Large connection pool for concurrent part uploads
//   - No overall timeout; operations are bounded by their context
//   - HTTP/2 with a runtime toggle (DISABLE_HTTP2 env var)
//   - Disabled compression (no benefit for already-compressed files)
//
// The client is shared by every operation of one catalog so that connections
// are reused across transfers.
func CreateOptimizedClient(p ProxyConfig, logger *logging.Logger) (*nethttp.Client, error) {
	baseClient, err := ConfigureHTTPClient(p, logger)
	if err != nil {
		return nil, err
	}
	baseClient.Timeout = 0

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport; keep it as is.
		return baseClient, nil
	}

	tr.MaxIdleConns = constants.HTTPMaxIdleConns
	tr.MaxIdleConnsPerHost = constants.HTTPMaxConnsPerHost
	tr.MaxConnsPerHost = constants.HTTPMaxConnsPerHost
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true

	_ = http2.ConfigureTransport(tr)

	// Set DISABLE_HTTP2=true to force HTTP/1.1
	disable := os.Getenv("DISABLE_HTTP2") == "true"

	// Proxies often break HTTP/2 multiplexing mid-transfer. FORCE_HTTP2=true
	// overrides.
	if p.Active(os.Getenv) && os.Getenv("FORCE_HTTP2") != "true" {
		disable = true
	}
	if disable {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	return baseClient, nil
}
