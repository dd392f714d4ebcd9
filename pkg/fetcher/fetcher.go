// Package fetcher retrieves pages and parses them into navigable documents.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/caching"
	"github.com/dtnitsch/linkmeta/pkg/locator"
)

const acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Document is a parsed page together with the URL it was read from.
type Document struct {
	URL  string
	HTML string
	Doc  *goquery.Document
}

// NewDocument parses html as the page at rawURL.
func NewDocument(rawURL, html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{URL: rawURL, HTML: html, Doc: doc}, nil
}

// Source hands the pipeline a parsed document for a URL. The static Fetcher
// downloads it; an interactive session returns whatever page it shows.
type Source interface {
	Document(ctx context.Context, rawURL string) (*Document, error)
}

// Options configures a Fetcher. Zero values fall back to defaults.
type Options struct {
	UserAgent string
	// Timeout of zero keeps the transport default.
	Timeout time.Duration
	Cache   *caching.Cache
	Client  *http.Client
	Logger  *slog.Logger
}

// Fetcher performs static GET requests.
type Fetcher struct {
	client    *http.Client
	userAgent string
	cache     *caching.Cache
	logger    *slog.Logger
}

func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		jar, _ := cookiejar.New(nil)
		client = &http.Client{Jar: jar, Timeout: opts.Timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = models.DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		cache:     opts.Cache,
		logger:    logger,
	}
}

// Document fetches rawURL and parses it. The URL is validated before any
// network I/O. Non-2xx responses and transport failures are *models.FetchError.
func (f *Fetcher) Document(ctx context.Context, rawURL string) (*Document, error) {
	if _, err := locator.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	if f.cache != nil {
		if data, ok := f.cache.Get(rawURL); ok {
			f.logger.Debug("page cache hit", "url", rawURL)
			return NewDocument(rawURL, string(data))
		}
	}

	body, err := f.GetHtmlBytes(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.Set(rawURL, body); err != nil {
			f.logger.Warn("failed to cache page", "url", rawURL, "error", err)
		}
	}
	return NewDocument(rawURL, string(body))
}

// GetHtmlBytes issues the GET and returns the raw body.
func (f *Fetcher) GetHtmlBytes(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, models.InvalidURLError(rawURL, err.Error())
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Err: fmt.Errorf("failed to make HTTP request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	return bodyBytes, nil
}

// Static wraps an already-parsed document as a Source, for callers that
// obtained the page by other means.
type Static struct {
	Doc *Document
}

func (s Static) Document(ctx context.Context, rawURL string) (*Document, error) {
	if s.Doc == nil {
		return nil, models.ErrSessionClosed
	}
	return s.Doc, nil
}
