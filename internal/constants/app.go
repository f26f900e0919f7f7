// Package constants holds tuning values shared across packages.
package constants

import "time"

// Transfer sizes
const (
	// ChunkSize - part size for multipart object uploads (32MB)
	ChunkSize = 32 * 1024 * 1024

	// UploadConcurrency - parts uploaded in parallel for a single object
	UploadConcurrency = 4
)

// Retry Configuration
const (
	// MaxRetries - attempts made by the retrying HTTP client before giving up
	MaxRetries = 10

	// RetryInitialDelay - base delay for exponential backoff
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - backoff cap
	RetryMaxDelay = 15 * time.Second
)

// Event Bus
const (
	// EventBusDefaultBuffer - buffered events per subscriber before events are dropped
	EventBusDefaultBuffer = 1000
)

// Progress
const (
	// ProgressThrottle - minimum interval between progress bar redraws
	ProgressThrottle = 100 * time.Millisecond

	// ProgressBarWidth - width of CLI progress bars in characters
	ProgressBarWidth = 50
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPMaxIdleConns - idle connections kept across all hosts
	HTTPMaxIdleConns = 512

	// HTTPMaxConnsPerHost - open and idle connections per host (concurrent part uploads)
	HTTPMaxConnsPerHost = 100

	// DefaultProxyPort - used when a proxy host is configured without a port
	DefaultProxyPort = 8080
)

// Catalog operations
const (
	// OpenTimeout - bound on connecting to a remote catalog (credential lookup, bucket check)
	OpenTimeout = 30 * time.Second
)

// Downloads
const (
	// DownloadSpaceMargin - free space required per downloaded file, as a multiple of its size
	DownloadSpaceMargin = 1.05
)
