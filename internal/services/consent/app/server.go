// Package app wires the consent service together: storage, domain logic,
// and the HTTP API behind a single server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pmyapp/accord/internal/consent/catalog"
	"github.com/pmyapp/accord/internal/platform/timeouts"
	consenthttp "github.com/pmyapp/accord/internal/services/consent/api/http"
	"github.com/pmyapp/accord/internal/services/consent/domain"
	"github.com/pmyapp/accord/internal/services/consent/storage/bolt"
	"github.com/pmyapp/accord/internal/services/consent/storage/sqlite"
)

// Config holds the consent server configuration.
type Config struct {
	// HTTPAddr is the address the JSON API listens on.
	HTTPAddr string
	// DBPath locates the SQLite database holding contracts and approvals.
	DBPath string
	// DraftsDBPath locates the bbolt database holding in-progress flow state.
	DraftsDBPath string
}

// Server owns the consent service runtime.
type Server struct {
	httpAddr   string
	httpServer *http.Server
	store      *sqlite.Store
	drafts     *bolt.Store
	service    *domain.Service
	catalog    *catalog.Catalog
}

// NewServer opens storage and builds the HTTP API.
func NewServer(cfg Config) (*Server, error) {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open consent store: %w", err)
	}
	drafts, err := bolt.Open(cfg.DraftsDBPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open draft store: %w", err)
	}

	service, err := domain.NewService(store, nil, nil)
	if err != nil {
		_ = store.Close()
		_ = drafts.Close()
		return nil, fmt.Errorf("init consent service: %w", err)
	}
	cat, err := catalog.Default()
	if err != nil {
		_ = store.Close()
		_ = drafts.Close()
		return nil, fmt.Errorf("load encounter catalog: %w", err)
	}

	router := consenthttp.NewRouter(consenthttp.NewHandler(service))
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "consent.http"),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		httpAddr:   cfg.HTTPAddr,
		httpServer: httpServer,
		store:      store,
		drafts:     drafts,
		service:    service,
		catalog:    cat,
	}, nil
}

// Service exposes the domain service for in-process callers.
func (s *Server) Service() *domain.Service {
	return s.service
}

// ListenAndServe serves the HTTP API until ctx is canceled or the listener
// fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("consent server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("consent listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases storage held by the server.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if err := s.drafts.Close(); err != nil {
		log.Printf("close draft store: %v", err)
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close consent store: %v", err)
	}
}
