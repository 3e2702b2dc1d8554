// Package httpapi is the operator HTTP surface: settings, logout, status and
// the WebSocket observer endpoint.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"wabot/internal/session"
	"wabot/internal/storage"
	"wabot/pkg/logx"
)

// Controller is the session manager as seen from HTTP.
type Controller interface {
	Status() session.Status
	Logout(ctx context.Context) error
	UpdateSettings(ctx context.Context, message string, isActive bool) (storage.Settings, error)
	GetCurrentSettings(ctx context.Context) (storage.Settings, error)
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Server struct {
	cfg    Config
	echo   *echo.Echo
	ctrl   Controller
	ws     http.Handler
	health func() any
	pprof  bool
	log    logx.Logger
}

type Option func(*Server)

// WithHealth adds fn's result to the /healthz body.
func WithHealth(fn func() any) Option {
	return func(s *Server) { s.health = fn }
}

// WithWebSocket mounts h at /ws.
func WithWebSocket(h http.Handler) Option {
	return func(s *Server) { s.ws = h }
}

func New(cfg Config, ctrl Controller, log logx.Logger, opts ...Option) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(log))

	s := &Server{cfg: cfg, echo: e, ctrl: ctrl, log: log}
	for _, o := range opts {
		o(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)

	api := s.echo.Group("/api")
	api.GET("/settings", s.handleGetSettings)
	api.POST("/settings", s.handleUpdateSettings)
	api.POST("/logout", s.handleLogout)
	api.GET("/status", s.handleStatus)

	if s.ws != nil {
		s.echo.GET("/ws", echo.WrapHandler(s.ws))
	}
	if s.pprof {
		s.registerPprof()
	}
}

func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))
		errCh <- s.echo.Start(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(sctx); err != nil {
		s.log.Warn("http shutdown incomplete", logx.Err(err))
		return err
	}
	return nil
}

func requestLogger(log logx.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logx.Field{
				logx.String("method", v.Method),
				logx.String("uri", v.URI),
				logx.Int("status", v.Status),
				logx.Duration("dur", v.Latency),
			}
			if v.Error != nil {
				log.Warn("request failed", append(fields, logx.Err(v.Error))...)
				return nil
			}
			log.Debug("request", fields...)
			return nil
		},
	})
}
