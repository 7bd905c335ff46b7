package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Capabilities are passed through to the rendering engine; their exact
// semantics belong to Chrome.
type Capabilities struct {
	JavaScript   bool
	LocalStorage bool
	TouchIcons   bool
	Plugins      bool
}

// DefaultCapabilities enables everything.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		JavaScript:   true,
		LocalStorage: true,
		TouchIcons:   true,
		Plugins:      true,
	}
}

// Options configures the Chrome process.
type Options struct {
	// ExecPath overrides chromedp's browser discovery when set.
	ExecPath string
	// ProfileDir keeps cookies and local storage across restarts; a
	// temporary profile is used when empty.
	ProfileDir   string
	Capabilities Capabilities
}

// flags returns the command-line switches for a kiosk window. A false
// value removes a switch chromedp would otherwise pass.
func (o Options) flags() map[string]any {
	f := map[string]any{
		"headless":                       false,
		"hide-scrollbars":                false,
		"mute-audio":                     false,
		"enable-automation":              false,
		"kiosk":                          true,
		"start-fullscreen":               true,
		"noerrdialogs":                   true,
		"disable-infobars":               true,
		"disable-session-crashed-bubble": true,
		"disable-translate":              true,
		"overscroll-history-navigation":  "0",
	}
	caps := o.Capabilities
	if caps.TouchIcons {
		f["touch-events"] = "enabled"
	}
	if !caps.JavaScript {
		f["blink-settings"] = "scriptEnabled=false"
	}
	if !caps.LocalStorage {
		f["disable-local-storage"] = true
	}
	if !caps.Plugins {
		f["disable-plugins"] = true
	}
	return f
}

func (o Options) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range o.flags() {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	if o.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(o.ProfileDir))
	}
	return opts
}

// Engine owns one Chrome process. Each Surface is a page target in its
// single kiosk window; the active target is the one on screen.
type Engine struct {
	opts Options
	log  *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu        sync.Mutex
	onDismiss func(key string)
}

// NewEngine launches Chrome and waits for it to accept commands.
func NewEngine(ctx context.Context, opts Options, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "engine"))

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(log.Sugar().Errorf),
	)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	log.Info("Browser engine started")

	e := &Engine{
		opts:          opts,
		log:           log,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	// Chrome's first tab stays in the kiosk window behind every surface.
	first := chromedp.FromContext(browserCtx).Target.TargetID
	if err := e.hook(browserCtx, first); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("hook initial tab: %w", err)
	}
	return e, nil
}

// SetDismissHandler registers the function called when a dismiss key is
// pressed in any surface. It runs on an engine goroutine.
func (e *Engine) SetDismissHandler(fn func(key string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDismiss = fn
}

func (e *Engine) dismiss(key string) {
	e.mu.Lock()
	fn := e.onDismiss
	e.mu.Unlock()
	if fn != nil {
		fn(key)
	}
}

// Surface opens a new page target. Background targets load without
// taking the screen until BringToFront.
func (e *Engine) Surface(ctx context.Context, background bool) (*Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := chromedp.FromContext(e.browserCtx)
	id, err := target.CreateTarget("about:blank").
		WithBackground(background).
		Do(cdp.WithExecutor(e.browserCtx, c.Browser))
	if err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}

	tabCtx, cancel := chromedp.NewContext(e.browserCtx, chromedp.WithTargetID(id))
	if err := e.hook(tabCtx, id); err != nil {
		cancel()
		return nil, err
	}

	e.log.Debug("Surface created", zap.String("target", string(id)), zap.Bool("background", background))
	return &Surface{id: id, ctx: tabCtx, cancel: cancel, log: e.log}, nil
}

// hook routes dismiss keys pressed in the tab behind tabCtx to the
// engine's handler and applies the capability settings to it.
func (e *Engine) hook(tabCtx context.Context, id target.ID) error {
	chromedp.ListenTarget(tabCtx, func(ev any) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != bindingName {
			return
		}
		if key, ok := dismissKey(called.Payload); ok {
			e.log.Info("Dismiss input received", zap.String("key", key), zap.String("target", string(id)))
			e.dismiss(key)
		}
	})

	caps := e.opts.Capabilities
	return chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := runtime.AddBinding(bindingName).Do(ctx); err != nil {
				return fmt.Errorf("add dismiss binding: %w", err)
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(dismissScript).Do(ctx); err != nil {
				return fmt.Errorf("install dismiss script: %w", err)
			}
			return nil
		}),
		// The document already loaded in the tab predates the script.
		chromedp.Evaluate(dismissScript, nil),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetScriptExecutionDisabled(!caps.JavaScript).Do(ctx)
		}),
	)
}

// Close shuts Chrome down.
func (e *Engine) Close() error {
	err := chromedp.Cancel(e.browserCtx)
	e.browserCancel()
	e.allocCancel()
	return err
}

// Surface is one page target.
type Surface struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// ID returns the Chrome target id.
func (s *Surface) ID() target.ID { return s.id }

// Navigate loads url and waits for the load event.
func (s *Surface) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(s.ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// BringToFront makes the surface the visible one.
func (s *Surface) BringToFront(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
}

// Close closes the target. Later calls return the first result.
func (s *Surface) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancel()
		s.log.Debug("Surface closed", zap.String("target", string(s.id)))
	})
	return s.closeErr
}
