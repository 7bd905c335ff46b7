package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pikiosk/internal/browser"
	"pikiosk/internal/config"
	"pikiosk/internal/instance"
	"pikiosk/internal/launcher"
	"pikiosk/internal/logging"
	"pikiosk/internal/scheduler"
	"pikiosk/internal/settings"
	"pikiosk/internal/splash"
	"pikiosk/internal/web"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	lock, err := instance.Acquire(cfg.LockPath)
	switch {
	case errors.Is(err, instance.ErrAlreadyRunning):
		log.Info("Kiosk is already running, exiting", zap.String("lock", cfg.LockPath))
		return 0
	case err != nil:
		log.Warn("Could not take instance lock, continuing", zap.Error(err))
	default:
		if lock.WriteErr != nil {
			log.Warn("Could not record PID in lock file", zap.String("lock", cfg.LockPath), zap.Error(lock.WriteErr))
		}
		defer func() {
			if err := lock.Release(); err != nil {
				log.Warn("Failed to release instance lock", zap.Error(err))
			}
		}()
	}

	st := settings.Load(cfg.SettingsPath, log)
	log.Info("Resolved server URL", zap.String("url", st.ServerURL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := web.New(cfg.SplashAddr, log)
	if err := server.Start(); err != nil {
		log.Error("Failed to start splash server", zap.Error(err))
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	engine, err := browser.NewEngine(ctx, browser.Options{
		ExecPath:     cfg.ChromePath,
		ProfileDir:   cfg.ProfilePath,
		Capabilities: browser.DefaultCapabilities(),
	}, log)
	if err != nil {
		log.Error("Failed to start browser engine", zap.Error(err))
		return 1
	}
	defer engine.Close()

	splashSurface, err := engine.Surface(ctx, false)
	if err != nil {
		log.Error("Failed to open splash window", zap.Error(err))
		return 1
	}

	sched := scheduler.New(log)
	presenter := splash.NewPresenter(config.AppName, sched, server, splashSurface, log)
	l := launcher.New(launcher.Config{
		SplashImage:    cfg.SplashPath,
		SplashDuration: cfg.SplashDuration,
		RevealDelay:    cfg.RevealDelay,
	}, sched, presenter, kioskBrowser{browser.NewKioskBrowser(engine, log)}, log)

	engine.SetDismissHandler(func(key string) {
		l.DismissAsync("key " + key)
	})

	if err := l.Run(ctx, st.ServerURL); err != nil {
		log.Error("Display session failed", zap.Error(err))
		return 1
	}
	log.Info("Kiosk closed")
	return 0
}

// kioskBrowser adapts *browser.KioskBrowser to launcher.Browser.
type kioskBrowser struct {
	*browser.KioskBrowser
}

func (k kioskBrowser) Open(ctx context.Context, url string) (launcher.Window, error) {
	w, err := k.KioskBrowser.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	return w, nil
}
