// Package server exposes an attendance engine over HTTP and WebSocket.
//
// Routes:
//
//	GET  /healthz
//	GET  /v1/sheets/:date/:scope?type=player
//	PUT  /v1/sheets/:date/:scope
//	POST /v1/sheets/:date/:scope/initialize
//	GET  /v1/sheets/:date/:scope/events?type=player   (WebSocket)
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/roach88/rollcall/internal/attendance"
)

// Service is what the server exposes. *engine.Engine implements it.
type Service interface {
	Get(ctx context.Context, sheet attendance.Sheet) ([]attendance.Record, error)
	BulkUpsert(ctx context.Context, sheet attendance.Sheet, entries []attendance.Entry, editor string) error
	Initialize(ctx context.Context, sheet attendance.Sheet) (int, error)
	Subscribe(ctx context.Context, f attendance.Filter) (attendance.Subscription, error)
	Ping(ctx context.Context) error
}

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Server is the HTTP front of an engine.
type Server struct {
	svc      Service
	identity *Identity
	validate *validator.Validate
	upgrader websocket.Upgrader
	router   *gin.Engine

	writeTimeout time.Duration
	pingInterval time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithJWTSecret enables HS256 bearer token checks.
func WithJWTSecret(secret []byte) Option {
	return func(s *Server) {
		s.identity = NewIdentity(secret)
	}
}

// WithPingInterval sets how often idle WebSocket streams are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// New builds the router over svc.
func New(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:          svc,
		identity:     NewIdentity(nil),
		validate:     validator.New(),
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.handleHealth)

	v1 := r.Group("/v1", s.identity.Middleware())
	v1.GET("/sheets/:date/:scope", s.handleGet)
	v1.PUT("/sheets/:date/:scope", s.handleCommit)
	v1.POST("/sheets/:date/:scope/initialize", s.handleInitialize)
	v1.GET("/sheets/:date/:scope/events", s.handleEvents)

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// requestLogger logs each request at debug level through slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
