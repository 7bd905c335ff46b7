package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templatesFS embed.FS

// ImagePath is the route the splash image is served from.
const ImagePath = "/splash/image"

// Content is what the splash page shows. A nil Image selects the text
// fallback with Title centred on a dark background.
type Content struct {
	Title       string
	Image       []byte
	ContentType string
}

// Server serves the splash page on a loopback listener.
type Server struct {
	addr      string
	log       *zap.Logger
	router    *chi.Mux
	templates *template.Template

	mu      sync.RWMutex
	content Content
	srv     *http.Server
	baseURL string
}

func New(addr string, log *zap.Logger) *Server {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		panic(err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		addr:      addr,
		log:       log.With(zap.String("component", "splash-server")),
		router:    chi.NewRouter(),
		templates: tmpl,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.NoCache)
	s.router.Use(s.requestLogger)
	s.router.Get("/", s.handleSplash)
	s.router.Get(ImagePath, s.handleImage)
	s.router.Get("/healthz", s.handleHealth)
}

// SetContent replaces what the page shows.
func (s *Server) SetContent(c Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = c
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.baseURL = "http://" + ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Splash server stopped", zap.Error(err))
		}
	}()
	s.log.Debug("Splash server listening", zap.String("url", s.baseURL))
	return nil
}

// URL returns the base URL of the running server, or "" before Start.
func (s *Server) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseURL
}

// Shutdown stops the server. It is a no-op if Start was never called.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.srv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleSplash(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	c := s.content
	s.mu.RUnlock()

	data := struct {
		Title     string
		HasImage  bool
		ImagePath string
	}{
		Title:     c.Title,
		HasImage:  len(c.Image) > 0,
		ImagePath: ImagePath,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "splash.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	c := s.content
	s.mu.RUnlock()

	if len(c.Image) == 0 {
		http.NotFound(w, r)
		return
	}

	ct := c.ContentType
	if ct == "" {
		ct = http.DetectContentType(c.Image)
	}
	w.Header().Set("Content-Type", ct)
	w.Write(c.Image)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("Served request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}
