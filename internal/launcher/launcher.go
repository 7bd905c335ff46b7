// Package launcher sequences the splash screen and the kiosk browser.
//
// A launch moves through four states:
//
//	Init -> SplashShowing -> BrowserShowing -> Terminated
//
// Init shows the splash and opens the browser hidden. Two independent
// one-shot timers then run on the event loop: the splash closes itself
// when its minimum duration elapses, and the reveal timer brings the
// browser to the front. A dismiss input moves any state straight to
// Terminated.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pikiosk/internal/scheduler"
)

// RevealTimer is the event-loop timer that shows the browser.
const RevealTimer = "reveal"

// State is the display session state.
type State int

const (
	StateInit State = iota
	StateSplashShowing
	StateBrowserShowing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSplashShowing:
		return "splash"
	case StateBrowserShowing:
		return "browser"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Splash presents the startup screen and closes itself after minDuration.
type Splash interface {
	Present(ctx context.Context, imagePath string, minDuration time.Duration) (<-chan struct{}, error)
	Close() error
}

// Window is an opened, initially hidden browser window.
type Window interface {
	Reveal(ctx context.Context) error
	Close() error
}

// Browser opens the kiosk window for a URL.
type Browser interface {
	Open(ctx context.Context, url string) (Window, error)
}

// Config holds the timings and splash image for one launch.
type Config struct {
	SplashImage    string
	SplashDuration time.Duration
	RevealDelay    time.Duration
}

// Launcher runs one display session. state, window and ctx are only
// touched on the event loop.
type Launcher struct {
	cfg     Config
	sched   *scheduler.Scheduler
	splash  Splash
	browser Browser
	log     *zap.Logger

	sessionID string
	state     State
	window    Window
	ctx       context.Context

	// OnTransition, when set, is called on the event loop after every
	// state change.
	OnTransition func(from, to State)
}

func New(cfg Config, sched *scheduler.Scheduler, splash Splash, browser Browser, log *zap.Logger) *Launcher {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	return &Launcher{
		cfg:       cfg,
		sched:     sched,
		splash:    splash,
		browser:   browser,
		sessionID: id,
		log:       log.With(zap.String("component", "launcher"), zap.String("session", id)),
		state:     StateInit,
	}
}

// SessionID identifies this display session in logs.
func (l *Launcher) SessionID() string { return l.sessionID }

// State returns the current state. Call it from the event loop, or after
// Run has returned.
func (l *Launcher) State() State { return l.state }

// Run shows the splash, opens url in the hidden browser and runs the event
// loop until the session is dismissed or ctx ends. Cancelling ctx counts
// as a dismiss and Run returns nil.
func (l *Launcher) Run(ctx context.Context, url string) error {
	if l.state != StateInit {
		return errors.New("launcher already ran")
	}
	l.ctx = ctx
	l.log.Info("Starting display session", zap.String("url", url))

	done, err := l.splash.Present(ctx, l.cfg.SplashImage, l.cfg.SplashDuration)
	if err != nil {
		l.terminate("splash failed")
		return fmt.Errorf("present splash: %w", err)
	}

	window, err := l.browser.Open(ctx, url)
	if err != nil {
		l.terminate("browser failed")
		return fmt.Errorf("open browser: %w", err)
	}
	l.window = window

	l.transition(StateSplashShowing)
	l.sched.AfterFunc(RevealTimer, l.cfg.RevealDelay, l.reveal)

	go func() {
		select {
		case <-done:
			l.sched.Post(func() { l.log.Debug("Splash closed", zap.Stringer("state", l.state)) })
		case <-l.sched.Done():
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			l.sched.Post(func() { l.Dismiss("context cancelled") })
		case <-l.sched.Done():
		}
	}()

	err = l.sched.Run(ctx)
	if l.state != StateTerminated {
		// ctx ended before the posted dismiss could run.
		l.terminate("context cancelled")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Dismiss ends the session from any state. It must run on the event loop;
// use DismissAsync from other goroutines.
func (l *Launcher) Dismiss(reason string) {
	if l.state == StateTerminated {
		return
	}
	l.terminate(reason)
}

// DismissAsync posts a dismiss to the event loop.
func (l *Launcher) DismissAsync(reason string) {
	l.sched.Post(func() { l.Dismiss(reason) })
}

func (l *Launcher) reveal() {
	if l.state != StateSplashShowing {
		return
	}
	if err := l.window.Reveal(l.ctx); err != nil {
		l.log.Error("Failed to reveal browser", zap.Error(err))
	}
	l.transition(StateBrowserShowing)
}

func (l *Launcher) terminate(reason string) {
	l.log.Info("Terminating display session", zap.String("reason", reason))
	l.sched.Cancel(RevealTimer)

	if err := l.splash.Close(); err != nil {
		l.log.Warn("Failed to close splash", zap.Error(err))
	}
	if l.window != nil {
		if err := l.window.Close(); err != nil {
			l.log.Warn("Failed to close browser", zap.Error(err))
		}
	}
	l.transition(StateTerminated)
	l.sched.Stop()
}

func (l *Launcher) transition(to State) {
	from := l.state
	l.state = to
	l.log.Info("State changed", zap.Stringer("from", from), zap.Stringer("to", to))
	if l.OnTransition != nil {
		l.OnTransition(from, to)
	}
}
