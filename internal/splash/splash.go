// Package splash shows the startup image full-screen for a minimum
// duration and signals when it has closed itself.
package splash

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"pikiosk/internal/scheduler"
	"pikiosk/internal/web"
)

// TimerName is the event-loop timer that ends the splash.
const TimerName = "splash"

// Surface is a full-screen, undecorated display area that can show a page.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	Close() error
}

// ImageLoadError reports a splash image that is missing or undecodable.
type ImageLoadError struct {
	Path string
	Err  error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("load splash image %s: %v", e.Path, e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

// Image is a decoded splash image ready to be served.
type Image struct {
	Data        []byte
	ContentType string
	Bounds      image.Rectangle
}

// LoadImage reads and fully decodes the image at path.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ImageLoadError{Path: path, Err: err}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ImageLoadError{Path: path, Err: err}
	}
	return &Image{
		Data:        data,
		ContentType: "image/" + format,
		Bounds:      img.Bounds(),
	}, nil
}

// Presenter drives one splash screen.
type Presenter struct {
	appName string
	sched   *scheduler.Scheduler
	server  *web.Server
	surface Surface
	log     *zap.Logger

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// NewPresenter returns a presenter that renders through server onto surface
// and times itself on sched.
func NewPresenter(appName string, sched *scheduler.Scheduler, server *web.Server, surface Surface, log *zap.Logger) *Presenter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Presenter{
		appName: appName,
		sched:   sched,
		server:  server,
		surface: surface,
		log:     log.With(zap.String("component", "splash")),
		done:    make(chan struct{}),
	}
}

// Present shows the image at imagePath, or the application name when it
// cannot be loaded, and starts the minimum-duration timer. The returned
// channel is closed once the splash has closed itself or been closed.
func (p *Presenter) Present(ctx context.Context, imagePath string, minDuration time.Duration) (<-chan struct{}, error) {
	content := web.Content{Title: p.appName}
	img, err := LoadImage(imagePath)
	if err != nil {
		p.log.Warn("Could not load splash image, showing text instead", zap.Error(err))
	} else {
		content.Image = img.Data
		content.ContentType = img.ContentType
		p.log.Debug("Splash image loaded",
			zap.String("path", imagePath),
			zap.Int("width", img.Bounds.Dx()),
			zap.Int("height", img.Bounds.Dy()))
	}
	p.server.SetContent(content)

	if err := p.surface.Navigate(ctx, p.server.URL()); err != nil {
		return nil, fmt.Errorf("show splash page: %w", err)
	}

	p.sched.AfterFunc(TimerName, minDuration, func() {
		p.log.Debug("Minimum splash duration elapsed")
		p.Close()
	})
	return p.done, nil
}

// Done is closed when the splash has gone away.
func (p *Presenter) Done() <-chan struct{} {
	return p.done
}

// Close cancels the timer and closes the surface. Only the first call has
// any effect.
func (p *Presenter) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.sched.Cancel(TimerName)
	err := p.surface.Close()
	close(p.done)
	if err != nil {
		return fmt.Errorf("close splash surface: %w", err)
	}
	return nil
}
