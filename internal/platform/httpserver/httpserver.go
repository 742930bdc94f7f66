// Package httpserver builds the listeners for the origin API and the relay.
package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server for the given address. ReadHeaderTimeout guards
// against slow-loris openings; IdleTimeout keeps the relay's upstream
// connections reusable without pinning them forever. There is no
// WriteTimeout because the relay streams origin responses of unknown size.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
