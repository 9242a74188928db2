// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/orchestrator"
)

// shutdownTimeout bounds how long ListenAndServe waits for open requests.
const shutdownTimeout = 5 * time.Second

// Orchestrator is the subset of *orchestrator.Orchestrator the server drives.
type Orchestrator interface {
	Submit(ctx context.Context, pipeline string, input []byte, opts ...orchestrator.SubmitOption) (*core.Run, error)
	Status(ctx context.Context, id string) (*core.Run, error)
	RunsForEvent(ctx context.Context, eventID string) ([]*core.Run, error)
	Cancel(ctx context.Context, id string) error
	Retry(ctx context.Context, id string) (*core.Run, error)
	Pipeline(name string) (*orchestrator.Pipeline, bool)
}

var _ Orchestrator = (*orchestrator.Orchestrator)(nil)

// Server serves the event and run polling API.
type Server struct {
	orch        Orchestrator
	decoders    map[string]func([]byte) ([]byte, error)
	corsOrigins []string
	engine      *gin.Engine
	logger      *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithEvent accepts events named name, converting their JSON data with decode.
// The name doubles as the pipeline the event triggers.
func WithEvent(name string, decode func(data []byte) ([]byte, error)) Option {
	return func(s *Server) error {
		if name == "" || decode == nil {
			return fmt.Errorf("%w: event needs a name and a decoder", core.ErrInput)
		}
		s.decoders[name] = decode
		return nil
	}
}

// WithCORS allows browser dashboards served from origins to poll the API.
func WithCORS(origins ...string) Option {
	return func(s *Server) error {
		s.corsOrigins = append(s.corsOrigins, origins...)
		return nil
	}
}

// New creates a server over orch.
func New(orch Orchestrator, opts ...Option) (*Server, error) {
	if orch == nil {
		return nil, ErrOrchestratorRequired
	}

	s := &Server{
		orch:     orch,
		decoders: make(map[string]func([]byte) ([]byte, error)),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(recovery(s.logger), requestLogger(s.logger))
	if len(s.corsOrigins) > 0 {
		cfg := cors.DefaultConfig()
		cfg.AllowOrigins = s.corsOrigins
		cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
		cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
		r.Use(cors.New(cfg))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.POST("/events", s.sendEvent)
	v1.GET("/events/:id/runs", s.eventRuns)
	v1.GET("/runs/:id", s.getRun)
	v1.POST("/runs/:id/cancel", s.cancelRun)
	v1.POST("/runs/:id/retry", s.retryRun)
	return r
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
