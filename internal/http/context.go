package http

import (
	"context"
	nethttp "net/http"

	"github.com/rescale/brocoli/internal/logging"
)

type proxyKey struct{}

// WithProxy returns a copy of ctx carrying the proxy settings that catalog
// openers use to build their HTTP client.
func WithProxy(ctx context.Context, p ProxyConfig) context.Context {
	return context.WithValue(ctx, proxyKey{}, p)
}

// ProxyFromContext returns the proxy settings of ctx. Without any, requests
// go out directly.
func ProxyFromContext(ctx context.Context) ProxyConfig {
	if p, ok := ctx.Value(proxyKey{}).(ProxyConfig); ok {
		return p
	}
	return ProxyConfig{Mode: ProxyNone}
}

// ClientFromContext builds an optimized client from the proxy settings and
// logger carried by ctx.
func ClientFromContext(ctx context.Context) (*nethttp.Client, error) {
	return CreateOptimizedClient(ProxyFromContext(ctx), logging.FromContext(ctx).Named("http"))
}
