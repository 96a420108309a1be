package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/2024aa05820/mlops-assignment2/internal/checkpoint"
	"github.com/2024aa05820/mlops-assignment2/internal/config"
	"github.com/2024aa05820/mlops-assignment2/internal/handlers"
	"github.com/2024aa05820/mlops-assignment2/internal/nn"
)

func waitForState(t *testing.T, s *Server, want handlers.State) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if s.Model().State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, still %s", want, s.Model().State())
}

func TestRun_ReadyAfterLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), checkpoint.BestName)
	ckpt := checkpoint.FromNetwork(nn.New(1, 0), 1, 0.8, 0.4, []string{"cat", "dog"})
	assert.NoError(t, checkpoint.Save(path, ckpt))

	cfg := config.New()
	cfg.Server.Port = 0
	cfg.Server.ModelPath = path
	cfg.Server.ShutdownTimeout = time.Second

	s := New(cfg, zap.NewNop().Sugar())
	assert.Equal(t, handlers.Starting, s.Model().State())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitForState(t, s, handlers.Ready)
	cancel()
	assert.NoError(t, <-done)
}

func TestRun_DegradedOnMissingCheckpoint(t *testing.T) {
	cfg := config.New()
	cfg.Server.Port = 0
	cfg.Server.ModelPath = filepath.Join(t.TempDir(), "missing.ckpt")
	cfg.Server.ShutdownTimeout = time.Second

	s := New(cfg, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// The process keeps serving in the degraded state instead of exiting.
	waitForState(t, s, handlers.Degraded)
	cancel()
	assert.NoError(t, <-done)
}
