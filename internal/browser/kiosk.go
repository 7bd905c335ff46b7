package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

// pageTarget is the subset of *Surface a Window drives.
type pageTarget interface {
	Navigate(ctx context.Context, url string) error
	BringToFront(ctx context.Context) error
	Close() error
}

// KioskBrowser opens the configured web application in a hidden,
// full-screen surface.
type KioskBrowser struct {
	open func(ctx context.Context) (pageTarget, error)
	log  *zap.Logger
}

// NewKioskBrowser returns a browser whose windows are background surfaces
// of engine.
func NewKioskBrowser(engine *Engine, log *zap.Logger) *KioskBrowser {
	if log == nil {
		log = zap.NewNop()
	}
	return &KioskBrowser{
		open: func(ctx context.Context) (pageTarget, error) {
			s, err := engine.Surface(ctx, true)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		log: log.With(zap.String("component", "browser")),
	}
}

// ValidateURL reports whether raw is an address the engine is expected to
// load: http(s) with a host, or a file URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("invalid url %q: missing host", raw)
		}
	case "file":
	default:
		return fmt.Errorf("invalid url %q: unsupported scheme %q", raw, u.Scheme)
	}
	return nil
}

// Open creates a background surface and starts loading rawURL without
// waiting for the page. The window stays hidden until Reveal. rawURL is
// handed to the engine unchanged even when it does not validate; a failed
// load leaves the window up showing the engine's error page.
func (b *KioskBrowser) Open(ctx context.Context, rawURL string) (*Window, error) {
	if err := ValidateURL(rawURL); err != nil {
		b.log.Warn("Server URL looks invalid, loading it anyway", zap.String("url", rawURL), zap.Error(err))
	}
	s, err := b.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser surface: %w", err)
	}

	w := newWindow(s, rawURL, b.log)
	w.load(ctx)
	return w, nil
}

// Window is the kiosk browser window.
type Window struct {
	page   pageTarget
	url    string
	log    *zap.Logger
	loaded chan error
}

func newWindow(p pageTarget, rawURL string, log *zap.Logger) *Window {
	return &Window{page: p, url: rawURL, log: log, loaded: make(chan error, 1)}
}

func (w *Window) load(ctx context.Context) {
	w.log.Info("Loading URL", zap.String("url", w.url))
	go func() {
		err := w.page.Navigate(ctx, w.url)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error("Page load failed", zap.String("url", w.url), zap.Error(err))
		} else if err == nil {
			w.log.Debug("Page loaded", zap.String("url", w.url))
		}
		w.loaded <- err
	}()
}

// URL returns the address the window was opened with.
func (w *Window) URL() string { return w.url }

// Loaded delivers the result of the initial page load once.
func (w *Window) Loaded() <-chan error { return w.loaded }

// Reveal brings the window to the front.
func (w *Window) Reveal(ctx context.Context) error {
	if err := w.page.BringToFront(ctx); err != nil {
		return fmt.Errorf("reveal browser: %w", err)
	}
	return nil
}

// Close closes the window's surface.
func (w *Window) Close() error {
	return w.page.Close()
}
