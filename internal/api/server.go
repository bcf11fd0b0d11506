// Package api exposes the pipeline's dashboard endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/hearthside/gigi-learning/internal/reporting"
	"github.com/hearthside/gigi-learning/internal/store"
)

type Server struct {
	echo     *echo.Echo
	reporter *reporting.Reporter
	port     int
}

func NewServer(reporter *reporting.Reporter, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{echo: e, reporter: reporter, port: port}

	e.GET("/healthz", s.Health)
	e.GET("/api/learning/stats", s.LearningStats)
	e.GET("/api/evaluations/stats", s.EvaluationStats)
	e.GET("/api/evaluations/flagged", s.FlaggedResponses)

	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Int("port", s.port).Msg("Starting dashboard API")
	if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) LearningStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.reporter.GetLearningStats(c.Request().Context()))
}

func (s *Server) EvaluationStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.reporter.GetEvaluationStats(c.Request().Context()))
}

func (s *Server) FlaggedResponses(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = parsed
	}
	channel := store.Channel(c.QueryParam("channel"))

	flagged := s.reporter.GetFlaggedResponses(c.Request().Context(), limit, channel)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":   len(flagged),
		"flagged": flagged,
	})
}
