package server

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
	"github.com/sebadal-solar/fusionsolar2json/internal/snapshot"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	ACTOR_REQUEST_TIMEOUT = 5 * time.Second
)

var errNoSnapshot = errors.New("no successful poll cycle yet")

type cycleStatus struct {
	CycleId   string    `json:"cycle_id"`
	Ok        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/api/snapshot", s.SnapshotHandler)
	e.GET("/api/status", s.StatusHandler)
	e.GET("/dashboard", s.DashboardHandler)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) latest() (*domain.GetLatestBalanceResponse, error) {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetLatestBalanceRequest{}, ACTOR_REQUEST_TIMEOUT).Result()
	if err != nil {
		return nil, err
	}
	resp, ok := res.(domain.GetLatestBalanceResponse)
	if !ok {
		return nil, errors.New("unexpected response")
	}
	if resp.HasResponseError() {
		return nil, resp.GetResponseError()
	}
	return &resp, nil
}

func (s *Server) latestBalance() (*domain.PowerBalance, error) {
	resp, err := s.latest()
	if err != nil {
		s.logger.Error("latest balance request failed", zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if resp.Balance == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, errNoSnapshot.Error())
	}
	return resp.Balance, nil
}

func (s *Server) SnapshotHandler(c echo.Context) error {
	pb, err := s.latestBalance()
	if err != nil {
		return err
	}
	data, err := snapshot.Encode(pb.Snapshot())
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, data)
}

func (s *Server) DashboardHandler(c echo.Context) error {
	pb, err := s.latestBalance()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := snapshot.NewDashboard(*pb, s.refreshSeconds).Render(&buf); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (s *Server) StatusHandler(c echo.Context) error {
	resp, err := s.latest()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if resp.LastCycle == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, errNoSnapshot.Error())
	}
	last := resp.LastCycle
	status := cycleStatus{
		CycleId:   last.CycleId,
		Ok:        last.Ok(),
		StartedAt: last.StartedAt,
		Duration:  last.Duration.String(),
	}
	if last.Err != nil {
		status.Error = last.Err.Error()
	}
	return c.JSON(http.StatusOK, status)
}
