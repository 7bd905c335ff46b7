package launcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pikiosk/internal/scheduler"
	"pikiosk/internal/splash"
	"pikiosk/internal/web"
)

type fakeSurface struct {
	closed atomic.Int32
}

func (f *fakeSurface) Navigate(ctx context.Context, url string) error { return nil }
func (f *fakeSurface) Close() error {
	f.closed.Add(1)
	return nil
}

type fakeWindow struct {
	revealed  atomic.Int32
	closed    atomic.Int32
	revealErr error
}

func (w *fakeWindow) Reveal(ctx context.Context) error {
	w.revealed.Add(1)
	return w.revealErr
}

func (w *fakeWindow) Close() error {
	w.closed.Add(1)
	return nil
}

type fakeBrowser struct {
	mu      sync.Mutex
	urls    []string
	window  *fakeWindow
	openErr error
}

func (b *fakeBrowser) Open(ctx context.Context, url string) (Window, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.urls = append(b.urls, url)
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.window, nil
}

func (b *fakeBrowser) opened() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.urls...)
}

type failingSplash struct{}

func (failingSplash) Present(ctx context.Context, imagePath string, d time.Duration) (<-chan struct{}, error) {
	return nil, errors.New("no display")
}
func (failingSplash) Close() error { return nil }

type harness struct {
	launcher    *Launcher
	clock       *clockwork.FakeClock
	sched       *scheduler.Scheduler
	surface     *fakeSurface
	browser     *fakeBrowser
	window      *fakeWindow
	transitions chan [2]State
	result      chan error
}

var testConfig = Config{
	SplashImage:    "splash.jpg",
	SplashDuration: 3000 * time.Millisecond,
	RevealDelay:    3000 * time.Millisecond,
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fakeClock := clockwork.NewFakeClock()
	sched := scheduler.New(nil)
	sched.Clock = fakeClock

	surface := &fakeSurface{}
	presenter := splash.NewPresenter("Baseball Pi Pro", sched, web.New("127.0.0.1:0", nil), surface, nil)
	window := &fakeWindow{}
	browser := &fakeBrowser{window: window}

	h := &harness{
		clock:       fakeClock,
		sched:       sched,
		surface:     surface,
		browser:     browser,
		window:      window,
		transitions: make(chan [2]State, 16),
		result:      make(chan error, 1),
	}
	h.launcher = New(testConfig, sched, presenter, browser, zap.NewNop())
	h.launcher.OnTransition = func(from, to State) { h.transitions <- [2]State{from, to} }
	return h
}

func (h *harness) start(t *testing.T, ctx context.Context, url string) {
	t.Helper()
	go func() { h.result <- h.launcher.Run(ctx, url) }()

	h.expect(t, StateInit, StateSplashShowing)

	// Splash and reveal timers.
	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(waitCtx, 2))
}

func (h *harness) expect(t *testing.T, from, to State) {
	t.Helper()
	select {
	case got := <-h.transitions:
		require.Equal(t, [2]State{from, to}, got)
	case <-time.After(time.Second):
		t.Fatalf("no transition %s -> %s", from, to)
	}
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.result:
		return err
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRun_Handoff(t *testing.T) {
	h := newHarness(t)
	h.start(t, context.Background(), "https://example.test")

	assert.Equal(t, []string{"https://example.test"}, h.browser.opened())

	h.clock.Advance(2999 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), h.window.revealed.Load(), "browser revealed before the splash duration")
	assert.Equal(t, int32(0), h.surface.closed.Load())

	h.clock.Advance(time.Millisecond)
	h.expect(t, StateSplashShowing, StateBrowserShowing)
	assert.Equal(t, int32(1), h.window.revealed.Load())
	require.Eventually(t, func() bool { return h.surface.closed.Load() == 1 }, time.Second, 5*time.Millisecond)

	h.launcher.DismissAsync("Escape")
	h.expect(t, StateBrowserShowing, StateTerminated)
	require.NoError(t, h.wait(t))

	assert.Equal(t, StateTerminated, h.launcher.State())
	assert.Equal(t, int32(1), h.window.closed.Load())
	assert.Equal(t, int32(1), h.surface.closed.Load())
}

func TestRun_MalformedURLStillHandsOff(t *testing.T) {
	h := newHarness(t)
	h.start(t, context.Background(), "localhost:3000")

	assert.Equal(t, []string{"localhost:3000"}, h.browser.opened())

	h.clock.Advance(3 * time.Second)
	h.expect(t, StateSplashShowing, StateBrowserShowing)
	assert.Equal(t, int32(1), h.window.revealed.Load())

	h.launcher.DismissAsync("Escape")
	h.expect(t, StateBrowserShowing, StateTerminated)
	require.NoError(t, h.wait(t))
}

func TestRun_DismissDuringSplash(t *testing.T) {
	h := newHarness(t)
	h.start(t, context.Background(), "https://baseballpi.pro")

	h.clock.Advance(time.Second)
	h.launcher.DismissAsync("Ctrl+C")
	h.expect(t, StateSplashShowing, StateTerminated)
	require.NoError(t, h.wait(t))

	assert.Empty(t, h.sched.Pending())
	assert.Equal(t, int32(1), h.surface.closed.Load())
	assert.Equal(t, int32(1), h.window.closed.Load())

	h.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), h.window.revealed.Load())
}

func TestRun_ContextCancelIsDismiss(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.start(t, ctx, "https://baseballpi.pro")

	cancel()
	require.NoError(t, h.wait(t))
	assert.Equal(t, StateTerminated, h.launcher.State())
	assert.Equal(t, int32(1), h.window.closed.Load())
	assert.Equal(t, int32(0), h.window.revealed.Load())
}

func TestRun_RevealFailureStillHandsOff(t *testing.T) {
	h := newHarness(t)
	h.window.revealErr = errors.New("target gone")
	h.start(t, context.Background(), "https://baseballpi.pro")

	h.clock.Advance(3 * time.Second)
	h.expect(t, StateSplashShowing, StateBrowserShowing)

	h.launcher.DismissAsync("Escape")
	require.NoError(t, h.wait(t))
}

func TestRun_OpenFailure(t *testing.T) {
	h := newHarness(t)
	h.browser.openErr = errors.New("engine crashed")

	err := h.launcher.Run(context.Background(), "https://baseballpi.pro")
	assert.ErrorContains(t, err, "engine crashed")
	assert.Equal(t, StateTerminated, h.launcher.State())
	assert.Equal(t, int32(1), h.surface.closed.Load())
	assert.Empty(t, h.sched.Pending())
}

func TestRun_SplashFailure(t *testing.T) {
	sched := scheduler.New(nil)
	browser := &fakeBrowser{window: &fakeWindow{}}
	l := New(testConfig, sched, failingSplash{}, browser, nil)

	err := l.Run(context.Background(), "https://baseballpi.pro")
	assert.ErrorContains(t, err, "no display")
	assert.Equal(t, StateTerminated, l.State())
	assert.Empty(t, browser.opened())
}

func TestRun_OnlyOnce(t *testing.T) {
	h := newHarness(t)
	h.start(t, context.Background(), "https://baseballpi.pro")
	h.launcher.DismissAsync("Escape")
	require.NoError(t, h.wait(t))

	assert.Error(t, h.launcher.Run(context.Background(), "https://baseballpi.pro"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "init", StateInit.String())
	assert.Equal(t, "splash", StateSplashShowing.String())
	assert.Equal(t, "browser", StateBrowserShowing.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestSessionID(t *testing.T) {
	a := New(testConfig, scheduler.New(nil), failingSplash{}, &fakeBrowser{}, nil)
	b := New(testConfig, scheduler.New(nil), failingSplash{}, &fakeBrowser{}, nil)
	assert.Len(t, a.SessionID(), 36)
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}
