package server

import (
	"context"
	"net/http"
	"time"
)

// Server wraps the HTTP server with the API router and fixed timeouts.
type Server struct {
	server *http.Server
}

// ListenAndServe blocks until the server stops. After Shutdown it returns
// http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for active requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// NewServer creates a server listening on address.
func NewServer(address string, router *ApiV1Router) *Server {
	return &Server{&http.Server{
		Addr:           address,
		Handler:        router.Mux(),
		ReadTimeout:    time.Second * 10,
		WriteTimeout:   time.Second * 60,
		MaxHeaderBytes: 1024 * 10,
	}}
}
