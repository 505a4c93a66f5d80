// Package httpserver builds the listener shared by the API binary.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// WriteTimeout leaves room past the router's per-request deadline so a
// handler that hit it can still write its error response.
const WriteTimeout = 35 * time.Second

// New returns a server with bounded header, read and idle times. Server-level
// errors such as TLS handshakes and broken connections go to logger at warn.
func New(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	if logger != nil {
		srv.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
	}
	return srv
}
