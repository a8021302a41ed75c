package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pobradovic08/myip/internal/model"
	"github.com/pobradovic08/myip/internal/ratelimit"
	"github.com/pobradovic08/myip/internal/tlsutil"
)

// Server is the myip HTTP server.
type Server struct {
	httpServer *http.Server
	tls        bool
	startedAt  time.Time
}

// ServerDeps holds the dependencies injected into the server.
type ServerDeps struct {
	Handler *APIHandler
	// RateLimiter is optional and only guards GET /.
	RateLimiter *ratelimit.Limiter
	// CertLoader is optional; when set the server speaks HTTPS.
	CertLoader   *tlsutil.CertificateLoader
	ListenAddr   string
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// NewServer creates a server with the route table and middleware stack.
func NewServer(deps ServerDeps) *Server {
	s := &Server{startedAt: time.Now()}

	s.httpServer = &http.Server{
		Addr:         deps.ListenAddr,
		Handler:      NewRouter(deps.Handler, deps.RateLimiter),
		WriteTimeout: deps.WriteTimeout,
		ReadTimeout:  deps.ReadTimeout,
	}
	if deps.CertLoader != nil {
		s.httpServer.TLSConfig = tlsutil.NewServerTLSConfig(deps.CertLoader)
		s.tls = true
	}
	return s
}

// NewRouter registers the routes on a mux and wraps it in the middleware
// stack: CORS, logging, panic recovery.
func NewRouter(h *APIHandler, limiter *ratelimit.Limiter) http.Handler {
	var home http.Handler = http.HandlerFunc(h.GetHome)
	if limiter != nil {
		home = limiter.Middleware(home)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", instrument(h.Metrics, "home", home))
	mux.Handle("GET /health", instrument(h.Metrics, "health", http.HandlerFunc(h.GetHealth)))

	handler := withPanicRecovery(mux)
	handler = withLogging(handler)
	handler = withCORS(handler)
	return handler
}

// Start begins listening for requests and blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("starting HTTP server", "addr", s.httpServer.Addr, "tls", s.tls)

	var err error
	if s.tls {
		// Certificates come from TLSConfig.GetCertificate.
		err = s.httpServer.ListenAndServeTLS("", "")
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server", "uptime", time.Since(s.startedAt).Round(time.Second))
	return s.httpServer.Shutdown(ctx)
}

// Middleware: per-route request counting
func instrument(m *MetricsCollector, route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.IncRequestsTotal(route, sw.status)
	})
}

// Middleware: structured logging
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// Middleware: CORS headers
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Middleware: panic recovery
func withPanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered in HTTP handler",
					"error", err,
					"path", r.URL.Path,
				)
				model.WriteProblem(w, r, http.StatusInternalServerError,
					"An unexpected error occurred. Please try again later.")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
