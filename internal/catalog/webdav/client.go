package webdav

import (
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/studio-b12/gowebdav"

	"github.com/rescale/brocoli/internal/catalog"
)

// Client is a gowebdav client bound to one collection URL.
type Client struct {
	*gowebdav.Client
	base *url.URL
}

// NewClient returns a client for the collection at baseURL. Requests go
// through hc, so proxy settings and retries of the HTTP layer apply.
func NewClient(baseURL, user, password string, hc *retryablehttp.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid WebDAV URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid WebDAV URL %q: scheme must be http or https", baseURL)
	}
	u.Path = "/" + strings.Trim(u.Path, "/")
	u.RawPath = ""

	c := gowebdav.NewClient(u.String(), user, password)
	if hc != nil {
		c.SetTransport(&retryablehttp.RoundTripper{Client: hc})
	}
	return &Client{Client: c, base: u}, nil
}

// classify maps WebDAV status codes onto catalog errors. 409 Conflict means
// an intermediate collection is missing (RFC 4918).
func classify(err error) error {
	switch statusCode(err) {
	case nethttp.StatusNotFound, nethttp.StatusConflict:
		return fmt.Errorf("%w: %w", catalog.ErrNotFound, err)
	case nethttp.StatusUnauthorized:
		return fmt.Errorf("unauthorized: %w", err)
	}
	return err
}

// statusCode returns the HTTP status carried by err, or 0.
func statusCode(err error) int {
	var se gowebdav.StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
