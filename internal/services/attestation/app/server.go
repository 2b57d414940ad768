// Package server wires the attestation runtime and HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/offertoryapp/offertory/internal/platform/config"
	"github.com/offertoryapp/offertory/internal/platform/timeouts"
	"github.com/offertoryapp/offertory/internal/services/attestation/api/httpapi"
	"github.com/offertoryapp/offertory/internal/services/attestation/domain"
	"github.com/offertoryapp/offertory/internal/services/attestation/identity"
	"github.com/offertoryapp/offertory/internal/services/attestation/notify"
	"github.com/offertoryapp/offertory/internal/services/attestation/outbox"
	"github.com/offertoryapp/offertory/internal/services/attestation/report"
	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
	attestationsqlite "github.com/offertoryapp/offertory/internal/services/attestation/storage/sqlite"
)

type serverEnv struct {
	DBPath     string `env:"OFFERTORY_ATTESTATION_DB_PATH"`
	ReportsDir string `env:"OFFERTORY_ATTESTATION_REPORTS_DIR"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "attestation.db")
	}
	if strings.TrimSpace(cfg.ReportsDir) == "" {
		cfg.ReportsDir = filepath.Join("data", "reports")
	}
	return cfg
}

// Server hosts the attestation HTTP API, the storage lifecycle, and the
// finalization outbox dispatcher.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *attestationsqlite.Store
	dispatcher *outbox.Dispatcher
}

// New creates a configured attestation server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured attestation server for the provided address.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	env := loadServerEnv()
	store, err := openAttestationStore(env.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	adapter := newStoreAdapter(store, store)
	coordinator := domain.NewCoordinator(adapter, domain.CoordinatorConfig{})
	resolver := identity.NewResolver(store)
	engine := domain.NewEngine(adapter, resolver, coordinator)
	donations := NewDonationService(store)
	attestors := NewAttestorService(store)

	handler := httpapi.NewHandler(engine, donations, attestors)
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	dispatcher := outbox.New(store, map[string]outbox.EventHandler{
		storage.EventTypeFinalizationReport: report.NewWriter(env.ReportsDir),
		storage.EventTypeFinalizationNotice: notify.NewLogNotifier(),
	}, outbox.Config{})

	return &Server{
		listener:   listener,
		httpServer: httpServer,
		store:      store,
		dispatcher: dispatcher,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an attestation server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the HTTP server and outbox dispatcher until context
// cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		if err := s.dispatcher.Run(dispatchCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("outbox dispatcher stopped error=%v", err)
		}
	}()

	log.Printf("attestation server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown attestation server: %v", err)
		}
		err := <-serveErr
		stopDispatch()
		<-dispatchDone
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		stopDispatch()
		<-dispatchDone
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// Close releases attestation server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close attestation store: %v", err)
		}
	}
}

func openAttestationStore(path string) (*attestationsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := attestationsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open attestation store: %w", err)
	}
	return store, nil
}
