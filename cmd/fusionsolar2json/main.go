package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/sebadal-solar/fusionsolar2json/internal/adapter/actor"
	adfusion "github.com/sebadal-solar/fusionsolar2json/internal/adapter/fusionsolar"
	"github.com/sebadal-solar/fusionsolar2json/internal/config"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/actor"
	"github.com/sebadal-solar/fusionsolar2json/internal/core/service"
	"github.com/sebadal-solar/fusionsolar2json/internal/metrics"
	"github.com/sebadal-solar/fusionsolar2json/internal/server"
	"github.com/sebadal-solar/fusionsolar2json/internal/util/actorutil"
	"github.com/sebadal-solar/fusionsolar2json/pkg/fusionsolar"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// unsigned config keys and their defaults
var uintDefaults = map[string]uint{
	"fusion.max_retries":   2,
	"poll.refresh_seconds": 60,
	"poll.plant_index":     0,
	"poll.timeout_seconds": config.DEFAULT_TIMEOUT_SECONDS,
	"mqtt.port":            1883,
	"port":                 8080,
}

// config keys and their extra env aliases
var envAliases = map[string][]string{
	"fusion.user":          nil,
	"fusion.pass":          nil,
	"fusion.subdomain":     nil,
	"fusion.base_url":      nil,
	"poll.refresh_seconds": {"REFRESH_SECONDS"},
	"poll.plant_index":     {"PLANT_INDEX"},
	"output.json_file":     {"OUT_FILE"},
	"output.html_file":     {"HTML_FILE"},
	"mqtt.host":            nil,
	"mqtt.username":        nil,
	"mqtt.password":        nil,
	"port":                 {"PORT"},
}

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	slog.Info("Using", "config", cfg.Redacted())

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	telemetryProv, err := telemetryActorProvider(cfg, logger)
	if err != nil {
		slog.Error("fusionsolar client", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	reconciler := service.NewPowerBalanceReconciler()
	props := actor.MasterProps(func() *actor.MasterActor {
		return actor.NewMasterActor(*cfg, reconciler, m, telemetryProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		slog.Error("spawn master actor", "error", err)
		os.Exit(1)
	}

	server := server.NewServer(*cfg, ctx, pid, m, logger)
	done := make(chan bool, 1)

	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	<-done
	log.Println("Graceful shutdown complete.")

	// lets the telemetry actor log out of the portal
	if err := ctx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("master actor stop", zap.Error(err))
	}
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	setConfigDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for key, aliases := range envAliases {
		envs := append([]string{strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, err
		}
	}

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	// a bad numeric value falls back to its default instead of failing the decode
	for key, def := range uintDefaults {
		if u, err := config.UintOr(viper.Get(key), def); err != nil {
			slog.Warn("invalid config value, using default", "key", key, "default", def, "error", err)
			viper.Set(key, u)
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace", "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func telemetryActorProvider(cfg *config.Config, logger *zap.Logger) (actor.TelemetryActorProvider, error) {

	client, err := fusionsolar.NewClient(fusionsolar.Config{
		Username:       cfg.Fusion.User,
		Password:       cfg.Fusion.Pass,
		Subdomain:      cfg.Fusion.Subdomain,
		BaseURL:        cfg.Fusion.BaseURL,
		RequestTimeout: cfg.Poll.Timeout(),
		MaxRetries:     cfg.Fusion.MaxRetries,
	}, logger)
	if err != nil {
		return nil, err
	}

	return func() *adactor.TelemetryActor {
		return adactor.NewTelemetryActor(cfg, adfusion.NewSource(client, logger), logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	for key, def := range uintDefaults {
		viper.SetDefault(key, def)
	}
	viper.SetDefault("log_level", "info")
	viper.SetDefault("fusion.keep_session", true)
	viper.SetDefault("output.json_file", "datos.json")
	viper.SetDefault("output.html_file", "")
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.base_topic", "fusionsolar")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("http_log", false)
}
