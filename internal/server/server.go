package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sebadal-solar/fusionsolar2json/internal/config"
	"github.com/sebadal-solar/fusionsolar2json/internal/metrics"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

type Server struct {
	port           uint
	httpLog        bool
	refreshSeconds uint
	rootContext    *actor.RootContext
	masterActor    *actor.PID
	metrics        *metrics.Metrics
	logger         *zap.Logger
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, m *metrics.Metrics, logger *zap.Logger) *http.Server {
	NewServer := &Server{
		port:           cfg.Port,
		httpLog:        cfg.HttpLog,
		refreshSeconds: cfg.Poll.RefreshSeconds,
		rootContext:    rootContext,
		masterActor:    masterActor,
		metrics:        m,
		logger:         logger.With(zap.String("component", "http")),
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
