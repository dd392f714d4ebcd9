// Package browser provides an interactive document source: a visible
// Chromium window the user navigates, whose current page is captured on
// request and handed to the pipeline like a fetched document.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/fetcher"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Options configures a Session.
type Options struct {
	// ControlURL attaches to a running browser instead of launching one.
	ControlURL string
	// Bin is the browser executable; looked up when empty.
	Bin      string
	Headless bool
	// WaitForUser blocks until the user asks for extraction. io.EOF or
	// models.ErrSessionClosed abandon the capture. Nil captures at once.
	WaitForUser func(ctx context.Context) error
	Logger      *slog.Logger
}

// Session is one browser window. It implements fetcher.Source.
type Session struct {
	mu       sync.Mutex
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	closed   bool

	wait   func(ctx context.Context) error
	logger *slog.Logger
}

// Open launches (or attaches to) a browser.
func Open(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{wait: opts.WaitForUser, logger: logger}

	controlURL := opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		s.launcher = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	s.browser = b
	logger.Debug("browser connected", "control_url", controlURL)
	return s, nil
}

// Navigate opens rawURL in the session window, reusing the current tab.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.ErrSessionClosed
	}

	if s.page == nil {
		page, err := s.browser.Page(proto.TargetCreateTarget{URL: rawURL})
		if err != nil {
			return s.lost(ctx, fmt.Errorf("failed to open page: %w", err))
		}
		s.page = page
	} else if err := s.page.Context(ctx).Navigate(rawURL); err != nil {
		return s.lost(ctx, fmt.Errorf("failed to navigate: %w", err))
	}

	if err := s.page.Context(ctx).WaitLoad(); err != nil {
		s.logger.Debug("page load not confirmed", "url", rawURL, "error", err)
	}
	return nil
}

// Document opens rawURL if no page is showing yet, waits for the user, and
// captures whatever page the window shows then. A window closed before
// capture yields models.ErrSessionClosed.
func (s *Session) Document(ctx context.Context, rawURL string) (*fetcher.Document, error) {
	s.mu.Lock()
	needPage := s.page == nil && !s.closed
	s.mu.Unlock()
	if needPage {
		if err := s.Navigate(ctx, rawURL); err != nil {
			return nil, err
		}
	}

	if s.wait != nil {
		if err := s.wait(ctx); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, models.ErrSessionClosed) {
				return nil, fmt.Errorf("%w: extraction abandoned", models.ErrSessionClosed)
			}
			return nil, err
		}
	}
	return s.capture(ctx)
}

func (s *Session) capture(ctx context.Context) (*fetcher.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.page == nil {
		return nil, models.ErrSessionClosed
	}

	page := s.page.Context(ctx)
	info, err := page.Info()
	if err != nil {
		return nil, s.lost(ctx, fmt.Errorf("failed to read page info: %w", err))
	}
	html, err := page.HTML()
	if err != nil {
		return nil, s.lost(ctx, fmt.Errorf("failed to read page HTML: %w", err))
	}

	s.logger.Debug("page captured", "url", info.URL, "bytes", len(html))
	return fetcher.NewDocument(info.URL, html)
}

// lost classifies a failed browser call. Cancellation is reported as is;
// anything else means the window or browser went away.
func (s *Session) lost(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	s.page = nil
	return fmt.Errorf("%w: %w", models.ErrSessionClosed, err)
}

// Close shuts the window and, when launched by Open, the browser.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	s.cleanup()
	return err
}

func (s *Session) cleanup() {
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
		s.launcher = nil
	}
}
