package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/cueapp/cue/internal/profile"
	apiv1 "github.com/cueapp/cue/server/router/api/v1"
	nudgerunner "github.com/cueapp/cue/server/runner/nudge"
	"github.com/cueapp/cue/server/stats"
	"github.com/cueapp/cue/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer  *echo.Echo
	collector   *stats.Collector
	nudgeRunner *nudgerunner.Runner
}

func NewServer(_ context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())

	collector := stats.NewCollector(store)
	apiV1Service := apiv1.NewAPIV1Service(profile, store, collector)
	apiV1Service.Register(echoServer)

	s := &Server{
		Profile:     profile,
		Store:       store,
		echoServer:  echoServer,
		collector:   collector,
		nudgeRunner: nudgerunner.NewRunner(store, apiV1Service.Assistant),
	}

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	s.collector.Start(ctx)
	go s.nudgeRunner.Run(ctx)

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	return s.echoServer.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
	slog.Info("cue stopped properly")
}
