package archive

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const defaultMaxArchiveBytes = 64 << 20

// FetcherConfig wires the fetcher dependencies.
type FetcherConfig struct {
	HTTPClient      *http.Client
	UserAgent       string
	MaxArchiveBytes int64
	Logger          *zap.Logger
}

// Fetcher downloads archive payloads.
type Fetcher struct {
	client          *http.Client
	userAgent       string
	maxArchiveBytes int64
	logger          *zap.Logger
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	client := cfg.HTTPClient
	if client == nil {
		client = NewHTTPClient(ClientConfig{RetryDelays: DefaultRetryDelays, Logger: cfg.Logger})
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	maxArchiveBytes := cfg.MaxArchiveBytes
	if maxArchiveBytes <= 0 {
		maxArchiveBytes = defaultMaxArchiveBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:          client,
		userAgent:       userAgent,
		maxArchiveBytes: maxArchiveBytes,
		logger:          logger,
	}
}

// Download returns the raw bytes served at downloadURL. Any non-2xx status is an error.
func (f *Fetcher) Download(ctx context.Context, downloadURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("User-Agent", f.userAgent)

	response, err := f.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &StatusError{URL: downloadURL, StatusCode: response.StatusCode}
	}

	payload, err := readLimited(response.Body, f.maxArchiveBytes)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("archive downloaded", zap.String("url", downloadURL), zap.Int("bytes", len(payload)))
	return payload, nil
}
