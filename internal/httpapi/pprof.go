package httpapi

import (
	"net/http"
	hpprof "net/http/pprof"

	"github.com/labstack/echo/v4"
)

const pprofPrefix = "/debug/pprof"

// WithPprof mounts the runtime profiler under /debug/pprof.
// Bind the listener to loopback when this is on.
func WithPprof() Option {
	return func(s *Server) { s.pprof = true }
}

func (s *Server) registerPprof() {
	g := s.echo.Group(pprofPrefix)
	g.GET("/", echo.WrapHandler(http.HandlerFunc(hpprof.Index)))
	g.GET("/cmdline", echo.WrapHandler(http.HandlerFunc(hpprof.Cmdline)))
	g.GET("/profile", echo.WrapHandler(http.HandlerFunc(hpprof.Profile)))
	g.GET("/symbol", echo.WrapHandler(http.HandlerFunc(hpprof.Symbol)))
	g.POST("/symbol", echo.WrapHandler(http.HandlerFunc(hpprof.Symbol)))
	g.GET("/trace", echo.WrapHandler(http.HandlerFunc(hpprof.Trace)))
	// Named profiles (heap, goroutine, block, ...) go through Index.
	g.GET("/:name", echo.WrapHandler(http.HandlerFunc(hpprof.Index)))
}
