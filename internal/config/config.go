package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// AppName is shown in the splash fallback and window titles.
	AppName = "Baseball Pi Pro"

	SettingsFile = "settings.json"
	SplashFile   = "splash.jpg"
	LockFile     = "pikiosk.lock"
	ProfileDir   = "profile"
)

// LauncherConfig holds the fixed layout and timings of the kiosk launcher.
// The server URL itself lives in the settings file, not here.
type LauncherConfig struct {
	// BaseDir is the directory holding the executable and its adjacent files.
	BaseDir string
	// SettingsPath is the JSON settings file read once at startup.
	SettingsPath string
	// SplashPath is the image shown while the browser loads.
	SplashPath string
	// LockPath guards against a second launcher on the same display.
	LockPath string
	// ProfilePath is the browser profile, so local storage survives reboots.
	ProfilePath string

	// SplashDuration is the minimum time the splash stays on screen.
	SplashDuration time.Duration
	// RevealDelay is when the browser window is brought to the front.
	RevealDelay time.Duration

	// SplashAddr is the loopback address the splash page is served on.
	SplashAddr string
	// ChromePath overrides browser discovery; empty means chromedp's lookup.
	ChromePath string

	LogLevel  string
	LogFormat string
}

// DefaultConfig returns the configuration for files located in baseDir.
func DefaultConfig(baseDir string) *LauncherConfig {
	return &LauncherConfig{
		BaseDir:        baseDir,
		SettingsPath:   filepath.Join(baseDir, SettingsFile),
		SplashPath:     filepath.Join(baseDir, SplashFile),
		LockPath:       filepath.Join(baseDir, LockFile),
		ProfilePath:    filepath.Join(baseDir, ProfileDir),
		SplashDuration: 3000 * time.Millisecond,
		RevealDelay:    3000 * time.Millisecond,
		SplashAddr:     "127.0.0.1:0",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load resolves the directory of the running executable and returns the
// default configuration for it. Falls back to the working directory when
// the executable path cannot be determined.
func Load() *LauncherConfig {
	return DefaultConfig(executableDir())
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}
