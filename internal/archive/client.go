package archive

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	DefaultUserAgent   = "drawsync/1.0 (+https://localhost)"
	DefaultHTTPTimeout = 30 * time.Second
	minHTTPTimeout     = 5 * time.Second
	maxHTTPTimeout     = 300 * time.Second
)

// DefaultRetryDelays are the waits between attempts on transient upstream faults.
var DefaultRetryDelays = []time.Duration{time.Second, 2 * time.Second, 5 * time.Second}

// ClientConfig configures the outbound HTTP client shared by the locator and fetcher.
type ClientConfig struct {
	Timeout     time.Duration
	RetryDelays []time.Duration
	Logger      *zap.Logger
}

// NewHTTPClient returns a standard client that retries connection errors, 429 and 5xx responses
// with the configured delays before surfacing the failure.
func NewHTTPClient(cfg ClientConfig) *http.Client {
	delays := append([]time.Duration(nil), cfg.RetryDelays...)

	retrying := retryablehttp.NewClient()
	retrying.HTTPClient = &http.Client{Timeout: ClampTimeout(cfg.Timeout)}
	retrying.RetryMax = len(delays)
	retrying.CheckRetry = retryablehttp.DefaultRetryPolicy
	retrying.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retrying.Backoff = func(_, _ time.Duration, attempt int, _ *http.Response) time.Duration {
		if len(delays) == 0 {
			return 0
		}
		if attempt < 0 {
			attempt = 0
		}
		if attempt >= len(delays) {
			attempt = len(delays) - 1
		}
		return delays[attempt]
	}
	if cfg.Logger != nil {
		retrying.Logger = retryLogger{logger: cfg.Logger.Sugar()}
	} else {
		retrying.Logger = nil
	}
	return retrying.StandardClient()
}

// ClampTimeout keeps request timeouts within 5s..300s; zero selects the default.
func ClampTimeout(timeout time.Duration) time.Duration {
	switch {
	case timeout <= 0:
		return DefaultHTTPTimeout
	case timeout < minHTTPTimeout:
		return minHTTPTimeout
	case timeout > maxHTTPTimeout:
		return maxHTTPTimeout
	default:
		return timeout
	}
}

type retryLogger struct {
	logger *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Infow(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}
