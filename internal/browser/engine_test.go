package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// findChrome returns a browser binary, or skips when none is installed or
// there is no display to open a kiosk window on.
func findChrome(t *testing.T) string {
	t.Helper()
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		t.Skip("Skipping engine test: no display")
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("Skipping engine test: no Chrome or Chromium found")
	return ""
}

func TestEngine_DismissFromPage(t *testing.T) {
	execPath := findChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1>scoreboard</h1></body></html>`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	engine, err := NewEngine(ctx, Options{
		ExecPath:     execPath,
		ProfileDir:   t.TempDir(),
		Capabilities: DefaultCapabilities(),
	}, zap.NewNop())
	if err != nil {
		t.Skipf("Skipping engine test: %v", err)
	}
	defer engine.Close()

	keys := make(chan string, 1)
	engine.SetDismissHandler(func(key string) { keys <- key })

	w, err := NewKioskBrowser(engine, nil).Open(ctx, srv.URL)
	require.NoError(t, err)
	require.NoError(t, <-w.Loaded())
	require.NoError(t, w.Reveal(ctx))

	s := w.page.(*Surface)
	var heading string
	require.NoError(t, chromedp.Run(s.ctx, chromedp.Text("h1", &heading)))
	assert.Equal(t, "scoreboard", heading)

	require.NoError(t, chromedp.Run(s.ctx, chromedp.KeyEvent(kb.Escape)))
	select {
	case key := <-keys:
		assert.Equal(t, KeyEscape, key)
	case <-ctx.Done():
		t.Fatal("dismiss key never reported")
	}

	assert.NoError(t, w.Close())
}

func TestEngine_DismissFromInitialTab(t *testing.T) {
	execPath := findChrome(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	engine, err := NewEngine(ctx, Options{
		ExecPath:     execPath,
		ProfileDir:   t.TempDir(),
		Capabilities: DefaultCapabilities(),
	}, zap.NewNop())
	if err != nil {
		t.Skipf("Skipping engine test: %v", err)
	}
	defer engine.Close()

	keys := make(chan string, 1)
	engine.SetDismissHandler(func(key string) { keys <- key })

	// Close a surface so Chrome falls back to the tab it started with.
	s, err := engine.Surface(ctx, false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, chromedp.Run(engine.browserCtx, chromedp.KeyEvent(kb.Escape)))
	select {
	case key := <-keys:
		assert.Equal(t, KeyEscape, key)
	case <-ctx.Done():
		t.Fatal("dismiss key never reported from the initial tab")
	}
}
