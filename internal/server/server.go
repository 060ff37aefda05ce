// Package server exposes the core over HTTP. Handlers are thin translation
// glue: they parse the request, call one service, and wrap the result in the
// {success, data|error} envelope.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/build"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/jobs"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/maintenance"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/sandbox"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Server holds the services the HTTP surface delegates to.
type Server struct {
	db         *gorm.DB
	registry   *sandbox.Registry
	health     *sandbox.HealthChecker
	builds     *build.Orchestrator
	dispatcher *jobs.Dispatcher
	scheduler  *maintenance.Scheduler
}

// New wires the server.
func New(db *gorm.DB, registry *sandbox.Registry, health *sandbox.HealthChecker, builds *build.Orchestrator, dispatcher *jobs.Dispatcher, scheduler *maintenance.Scheduler) *Server {
	return &Server{
		db:         db,
		registry:   registry,
		health:     health,
		builds:     builds,
		dispatcher: dispatcher,
		scheduler:  scheduler,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)
	return router
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	if port <= 0 {
		port = 8080
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
