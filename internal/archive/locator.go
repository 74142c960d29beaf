package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const defaultMaxPageBytes = 8 << 20

var (
	// ErrInvalidHistoryURL indicates a missing or non-absolute history page URL.
	ErrInvalidHistoryURL = errors.New("archive: invalid history url")
	// ErrUnknownSource indicates that no history page is configured for a game.
	ErrUnknownSource = errors.New("archive: no source configured for game")
	// ErrPayloadTooLarge indicates a response body above the configured limit.
	ErrPayloadTooLarge = errors.New("archive: payload exceeds size limit")
)

// StatusError reports an unexpected upstream HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("archive: %s returned status %d", e.URL, e.StatusCode)
}

// Source locates the history page of one game.
type Source struct {
	HistoryURL    string
	RuleStartDate lottery.Date
}

// Descriptor describes one downloadable archive linked from a history page.
type Descriptor struct {
	DownloadURL   string        `json:"downloadUrl"`
	SourcePageURL string        `json:"sourcePageUrl"`
	Label         string        `json:"label"`
	PeriodStart   *lottery.Date `json:"periodStart"`
	PeriodEnd     *lottery.Date `json:"periodEnd"`
}

// DiscoveryCache carries the validators and archive list of a previous discovery.
type DiscoveryCache struct {
	ETag         string
	LastModified string
	Archives     []Descriptor
}

// DiscoveryResult is the outcome of one discovery round.
type DiscoveryResult struct {
	Archives     []Descriptor
	ETag         string
	LastModified string
	FromCache    bool
}

// LocatorConfig wires the locator dependencies.
type LocatorConfig struct {
	HTTPClient   *http.Client
	Sources      map[lottery.Game]Source
	UserAgent    string
	MaxPageBytes int64
	Logger       *zap.Logger
}

// Locator discovers archive downloads on the per-game history pages.
type Locator struct {
	client       *http.Client
	sources      map[lottery.Game]Source
	userAgent    string
	maxPageBytes int64
	logger       *zap.Logger
}

// NewLocator constructs a Locator with defaults for optional settings.
func NewLocator(cfg LocatorConfig) *Locator {
	client := cfg.HTTPClient
	if client == nil {
		client = NewHTTPClient(ClientConfig{RetryDelays: DefaultRetryDelays, Logger: cfg.Logger})
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	maxPageBytes := cfg.MaxPageBytes
	if maxPageBytes <= 0 {
		maxPageBytes = defaultMaxPageBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sources := make(map[lottery.Game]Source, len(cfg.Sources))
	for game, source := range cfg.Sources {
		sources[game] = source
	}
	return &Locator{
		client:       client,
		sources:      sources,
		userAgent:    userAgent,
		maxPageBytes: maxPageBytes,
		logger:       logger,
	}
}

// Discover returns the archives currently linked from the game's history page. A "not modified"
// answer reuses the cached archive list when it is not empty.
func (l *Locator) Discover(ctx context.Context, game lottery.Game, cache *DiscoveryCache) (DiscoveryResult, error) {
	source, ok := l.sources[game]
	if !ok {
		return DiscoveryResult{}, fmt.Errorf("%w: %s", ErrUnknownSource, game)
	}
	pageURL, err := parseHistoryURL(source.HistoryURL)
	if err != nil {
		return DiscoveryResult{}, err
	}

	page, err := l.getPage(ctx, pageURL, cache)
	if err != nil {
		return DiscoveryResult{}, err
	}

	if page.statusCode == http.StatusNotModified {
		if cache != nil && len(cache.Archives) > 0 {
			l.logger.Info("history page not modified, reusing cached archives",
				zap.String("game", game.String()),
				zap.Int("archives", len(cache.Archives)))
			return DiscoveryResult{
				Archives:     append([]Descriptor(nil), cache.Archives...),
				ETag:         firstNonEmpty(page.etag, cache.ETag),
				LastModified: firstNonEmpty(page.lastModified, cache.LastModified),
				FromCache:    true,
			}, nil
		}
		l.logger.Warn("history page not modified but no archives cached, retrying unconditionally",
			zap.String("game", game.String()))
		page, err = l.getPage(ctx, pageURL, nil)
		if err != nil {
			return DiscoveryResult{}, err
		}
		if page.statusCode == http.StatusNotModified {
			return DiscoveryResult{}, &StatusError{URL: pageURL.String(), StatusCode: page.statusCode}
		}
	}

	archives, err := extractArchives(game, page.finalURL, page.body)
	if err != nil {
		return DiscoveryResult{}, err
	}
	discovered := len(archives)

	sortByPeriod(archives)
	kept := filterByRuleStart(archives, source.RuleStartDate)
	if len(kept) == 0 {
		kept = archives
	}

	l.logger.Info("archives discovered",
		zap.String("game", game.String()),
		zap.String("page", pageURL.String()),
		zap.Int("discovered", discovered),
		zap.Int("kept", len(kept)))

	return DiscoveryResult{
		Archives:     kept,
		ETag:         page.etag,
		LastModified: page.lastModified,
		FromCache:    false,
	}, nil
}

type pageResponse struct {
	statusCode   int
	finalURL     *url.URL
	etag         string
	lastModified string
	body         []byte
}

func (l *Locator) getPage(ctx context.Context, pageURL *url.URL, cache *DiscoveryCache) (pageResponse, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return pageResponse{}, err
	}
	request.Header.Set("User-Agent", l.userAgent)
	request.Header.Set("Accept", "text/html,application/xhtml+xml")
	if cache != nil {
		if cache.ETag != "" {
			request.Header.Set("If-None-Match", cache.ETag)
		}
		if cache.LastModified != "" {
			request.Header.Set("If-Modified-Since", cache.LastModified)
		}
	}

	response, err := l.client.Do(request)
	if err != nil {
		return pageResponse{}, err
	}
	defer response.Body.Close()

	page := pageResponse{
		statusCode:   response.StatusCode,
		finalURL:     pageURL,
		etag:         response.Header.Get("ETag"),
		lastModified: response.Header.Get("Last-Modified"),
	}
	if response.Request != nil && response.Request.URL != nil {
		page.finalURL = response.Request.URL
	}
	if response.StatusCode == http.StatusNotModified {
		return page, nil
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return pageResponse{}, &StatusError{URL: pageURL.String(), StatusCode: response.StatusCode}
	}

	body, err := readLimited(response.Body, l.maxPageBytes)
	if err != nil {
		return pageResponse{}, err
	}
	page.body = body
	return page, nil
}

func extractArchives(game lottery.Game, pageURL *url.URL, body []byte) ([]Descriptor, error) {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("archive: parse history page: %w", err)
	}

	seen := make(map[string]struct{})
	archives := make([]Descriptor, 0)
	document.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		absolute, ok := resolveLink(pageURL, href)
		if !ok || !looksLikeArchiveURL(absolute) {
			return
		}

		title, _ := anchor.Attr("title")
		ariaLabel, _ := anchor.Attr("aria-label")
		download, _ := anchor.Attr("download")
		label := collapseWhitespace(title + " " + ariaLabel + " " + anchor.Text())
		if !looksLikeArchiveLabel(game, label, download, absolute) {
			return
		}

		key := strings.ToLower(absolute.String())
		if _, duplicate := seen[key]; duplicate {
			return
		}
		seen[key] = struct{}{}

		if label == "" {
			label = firstNonEmpty(strings.TrimSpace(download), path.Base(absolute.Path))
		}
		start, end := inferPeriod(label + " " + absolute.String())
		archives = append(archives, Descriptor{
			DownloadURL:   absolute.String(),
			SourcePageURL: pageURL.String(),
			Label:         label,
			PeriodStart:   start,
			PeriodEnd:     end,
		})
	})
	return archives, nil
}

func resolveLink(base *url.URL, href string) (*url.URL, bool) {
	trimmed := strings.TrimSpace(href)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil, false
	}
	reference, err := url.Parse(trimmed)
	if err != nil {
		return nil, false
	}
	absolute := base.ResolveReference(reference)
	if absolute.Scheme != "http" && absolute.Scheme != "https" {
		return nil, false
	}
	absolute.Fragment = ""
	return absolute, true
}

// sortByPeriod orders archives by inferred start, undated archives first, keeping page order on ties.
func sortByPeriod(archives []Descriptor) {
	sort.SliceStable(archives, func(i, j int) bool {
		left, right := archives[i].PeriodStart, archives[j].PeriodStart
		switch {
		case left == nil:
			return right != nil
		case right == nil:
			return false
		default:
			return left.Before(*right)
		}
	})
}

func filterByRuleStart(archives []Descriptor, ruleStart lottery.Date) []Descriptor {
	if ruleStart.IsZero() {
		return archives
	}
	kept := make([]Descriptor, 0, len(archives))
	for _, archive := range archives {
		if archive.PeriodEnd != nil && archive.PeriodEnd.Before(ruleStart) {
			continue
		}
		kept = append(kept, archive)
	}
	return kept
}

func parseHistoryURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidHistoryURL)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHistoryURL, err)
	}
	if !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHistoryURL, trimmed)
	}
	return parsed, nil
}

func readLimited(reader io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, limit)
	}
	return body, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
