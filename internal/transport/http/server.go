// Package httptransport builds the HTTP server around the API handler.
package httptransport

import (
	"net/http"
	"time"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address     string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

// NewServer creates an *http.Server with the provided handler. There is no
// write timeout: the SSE stream endpoints hold their response open for the
// lifetime of the client connection.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:        cfg.Address,
		Handler:     handler,
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: cfg.IdleTimeout,
	}
}
