package http

import (
	"context"
	"math/rand"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/brocoli/internal/constants"
	"github.com/rescale/brocoli/internal/logging"
)

// ErrorType represents different classes of errors for retry strategy
type ErrorType int

const (
	// ErrorTypeSuccess indicates operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential indicates authentication/authorization failure (403, expired token)
	ErrorTypeCredential
	// ErrorTypeNetwork indicates network/connection issues (timeouts, connection refused, etc.)
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server errors that can be retried (500, 502, 503, throttling)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates client errors that should not be retried (400, 404, invalid request)
	ErrorTypeFatal
)

// RetryConfig holds retry parameters for NewRetryClient
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int
	// InitialDelay is the base delay for exponential backoff
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
}

// DefaultRetryConfig returns a RetryConfig with sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   constants.MaxRetries,
		InitialDelay: constants.RetryInitialDelay,
		MaxDelay:     constants.RetryMaxDelay,
	}
}

// ClassifyError determines the error type for retry strategy.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}

	errStr := strings.ToLower(err.Error())

	// Credential-related errors
	if strings.Contains(errStr, "expired") ||
		strings.Contains(errStr, "invalid token") ||
		strings.Contains(errStr, "expiredtoken") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "authentication failed") ||
		strings.Contains(errStr, "authenticationfailed") ||
		strings.Contains(errStr, "invalid sas") ||
		strings.Contains(errStr, "signature not valid") ||
		strings.Contains(errStr, "signaturedoesnotmatch") ||
		strings.Contains(errStr, "invalidaccesskeyid") ||
		strings.Contains(errStr, "authorization failure") {
		return ErrorTypeCredential
	}

	// Network errors - retryable with backoff
	if strings.Contains(errStr, "tls handshake timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	// Server issues, rate limiting
	if strings.Contains(errStr, "requesttimeout") ||
		strings.Contains(errStr, "internalerror") ||
		strings.Contains(errStr, "serviceunavailable") ||
		strings.Contains(errStr, "slowdown") ||
		strings.Contains(errStr, "throttl") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "server busy") ||
		strings.Contains(errStr, "serverbusy") ||
		strings.Contains(errStr, "service unavailable") {
		return ErrorTypeRetryable
	}

	// Unknown errors - treat as fatal to avoid infinite retries on unexpected errors
	return ErrorTypeFatal
}

// IsNetworkError reports whether err looks like a transient network failure.
func IsNetworkError(err error) bool {
	return ClassifyError(err) == ErrorTypeNetwork
}

// IsCredentialError reports whether err looks like rejected credentials.
func IsCredentialError(err error) bool {
	return ClassifyError(err) == ErrorTypeCredential
}

// CalculateBackoff returns exponential backoff duration with full jitter
//
// Formula: random(0, min(maxDelay, initialDelay * 2^attempt))
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}

	base := time.Duration(1<<uint(attempt)) * initialDelay
	if base > maxDelay || base <= 0 {
		base = maxDelay
	}

	return time.Duration(rand.Int63n(int64(base)))
}

// CheckRetry is the retryablehttp policy: transport errors are retried when
// they classify as network or server trouble, responses on 429 and 5xx
// (501 excepted). Credential and client errors are returned at once.
func CheckRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		switch ClassifyError(err) {
		case ErrorTypeNetwork, ErrorTypeRetryable:
			return true, nil
		}
		return false, err
	}
	if resp.StatusCode == nethttp.StatusTooManyRequests {
		return true, nil
	}
	if resp.StatusCode >= 500 && resp.StatusCode != nethttp.StatusNotImplemented {
		return true, nil
	}
	return false, nil
}

// Backoff honours Retry-After on 429/503 and otherwise uses full jitter.
func Backoff(min, max time.Duration, attempt int, resp *nethttp.Response) time.Duration {
	if resp != nil && (resp.StatusCode == nethttp.StatusTooManyRequests || resp.StatusCode == nethttp.StatusServiceUnavailable) {
		if resp.Header.Get("Retry-After") != "" {
			return retryablehttp.DefaultBackoff(min, max, attempt, resp)
		}
	}
	return CalculateBackoff(attempt+1, min, max)
}

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	l *logging.Logger
}

func (r retryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.l.Error().Fields(keysAndValues).Msg("[RETRY] " + msg)
}

func (r retryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.l.Debug().Fields(keysAndValues).Msg("[RETRY] " + msg)
}

func (r retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.l.Debug().Fields(keysAndValues).Msg("[RETRY] " + msg)
}

func (r retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.l.Warn().Fields(keysAndValues).Msg("[RETRY] " + msg)
}

// NewRetryClient wraps base in a retrying client. Request bodies must be
// rewindable (io.ReadSeeker or []byte) to be replayed without buffering.
func NewRetryClient(base *nethttp.Client, cfg RetryConfig, logger *logging.Logger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.InitialDelay
	rc.RetryWaitMax = cfg.MaxDelay
	rc.CheckRetry = CheckRetry
	rc.Backoff = Backoff
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = retryLogger{l: logging.OrNop(logger)}
	return rc
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
