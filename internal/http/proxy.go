package http

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"

	"github.com/rescale/brocoli/internal/constants"
	"github.com/rescale/brocoli/internal/logging"
)

// Proxy modes accepted in the [SETTINGS] section of the profile file.
const (
	ProxyNone   = "no-proxy"
	ProxySystem = "system"
	ProxyBasic  = "basic"
	ProxyNTLM   = "ntlm"
)

// ProxyConfig describes how remote catalogs reach the network.
type ProxyConfig struct {
	Mode     string
	Host     string
	Port     int
	User     string
	Password string
	NoProxy  string // comma separated hosts/CIDRs that bypass the proxy
}

// Active reports whether requests may go through a proxy.
func (p ProxyConfig) Active(getenv func(string) string) bool {
	switch strings.ToLower(p.Mode) {
	case ProxyNone, "":
		return false
	case ProxySystem:
		return getenv("HTTP_PROXY") != "" || getenv("HTTPS_PROXY") != "" ||
			getenv("http_proxy") != "" || getenv("https_proxy") != ""
	default:
		return p.Host != ""
	}
}

// NeedsPassword returns true if the proxy configuration requires a password
// but one has not been provided. Used by the CLI to decide whether to prompt.
func (p ProxyConfig) NeedsPassword() bool {
	mode := strings.ToLower(p.Mode)
	if mode != ProxyBasic && mode != ProxyNTLM {
		return false
	}
	return p.User != "" && p.Password == ""
}

// Validate rejects unknown modes and authenticated modes without a host.
func (p ProxyConfig) Validate() error {
	switch strings.ToLower(p.Mode) {
	case ProxyNone, "", ProxySystem:
		return nil
	case ProxyBasic, ProxyNTLM:
		if p.Host == "" {
			return fmt.Errorf("proxy mode %s requires a host", p.Mode)
		}
		if p.Port < 0 || p.Port > 65535 {
			return fmt.Errorf("invalid proxy port %d", p.Port)
		}
		return nil
	default:
		return fmt.Errorf("unsupported proxy mode: %s", p.Mode)
	}
}

func newTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}
}

// ConfigureHTTPClient returns a client whose transport honours the proxy
// settings. NTLM wraps the transport in a negotiator, so callers must not
// assume Transport is a *net/http.Transport.
func ConfigureHTTPClient(p ProxyConfig, logger *logging.Logger) (*nethttp.Client, error) {
	logger = logging.OrNop(logger)
	transport := newTransport()

	switch strings.ToLower(p.Mode) {
	case ProxyNone, "":
		transport.Proxy = nil

	case ProxySystem:
		transport.Proxy = nethttp.ProxyFromEnvironment

	case ProxyBasic, ProxyNTLM:
		// An incomplete saved profile falls back to a direct connection so
		// the user can still fix it.
		if p.Host == "" {
			logger.Warnf("Proxy mode is %s but host is missing - falling back to no-proxy mode", p.Mode)
			break
		}
		if p.NeedsPassword() {
			logger.Warnf("Proxy user configured but password missing - proxy auth disabled until password is set")
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(p), p.NoProxy, logger)
		if strings.ToLower(p.Mode) == ProxyNTLM {
			return &nethttp.Client{Transport: ntlmssp.Negotiator{RoundTripper: transport}}, nil
		}

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", p.Mode)
	}

	return &nethttp.Client{Transport: transport}, nil
}

// buildProxyURL constructs a proxy URL from config
func buildProxyURL(p ProxyConfig) *url.URL {
	port := p.Port
	if port == 0 {
		port = constants.DefaultProxyPort
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(p.Host, fmt.Sprint(port)),
	}

	// Only embed credentials if both user AND password are provided
	if p.User != "" && p.Password != "" {
		proxyURL.User = url.UserPassword(p.User, p.Password)
	}

	return proxyURL
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy bypass list.
// If noProxy is empty, behaves identically to nethttp.ProxyURL.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string, logger *logging.Logger) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	logger = logging.OrNop(logger)
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			logger.Debugf("[PROXY] Bypass: %s (direct connection)", req.URL.Host)
		} else {
			logger.Debugf("[PROXY] Proxied: %s -> %s", req.URL.Host, result.Host)
		}
		return result, err
	}
}
