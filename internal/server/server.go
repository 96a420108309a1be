// Package server owns the HTTP lifecycle: model load at startup, the
// service-state transitions, and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/2024aa05820/mlops-assignment2/internal/config"
	"github.com/2024aa05820/mlops-assignment2/internal/handlers"
	"github.com/2024aa05820/mlops-assignment2/internal/inference"
)

type Server struct {
	cfg   *config.Config
	model *handlers.ModelHandle
	http  *http.Server
	log   *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger) *Server {
	model := handlers.NewModelHandle()
	router := handlers.Router(handlers.New(model), cfg.Verbose)

	return &Server{
		cfg:   cfg,
		model: model,
		log:   log,
		http: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: router,
		},
	}
}

// Model exposes the state handle, mainly for tests.
func (s *Server) Model() *handlers.ModelHandle { return s.model }

// Run loads the checkpoint, transitions the service state accordingly, and
// serves until ctx is cancelled. A load failure leaves the process running
// in the degraded state: liveness stays green, readiness stays red.
func (s *Server) Run(ctx context.Context) error {
	s.log.Infof("loading model from %s", s.cfg.Server.ModelPath)
	engine, err := inference.Load(s.cfg.Server.ModelPath)
	if err != nil {
		s.model.Degrade()
		s.log.Errorf("model load failed, serving degraded: %v", err)
	} else {
		s.model.SetReady(engine)
		s.log.Infof("model ready (checkpoint epoch %d)", engine.Epoch())
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("server listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
