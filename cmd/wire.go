package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/bnema/imsim/internal/adapters/config"
	"github.com/bnema/imsim/internal/adapters/discovery"
	"github.com/bnema/imsim/internal/adapters/metrics"
	statusadapter "github.com/bnema/imsim/internal/adapters/render/status"
	"github.com/bnema/imsim/internal/adapters/transport/websocket"
	"github.com/bnema/imsim/internal/application"
	"github.com/bnema/imsim/internal/domain"
	"github.com/bnema/imsim/internal/logging"
)

const (
	envDiscoveryURL = "IMSIM_DISCOVERY_URL"
	envMetricsAddr  = "IMSIM_METRICS_ADDR"
)

type app struct {
	profile        config.Profile
	logger         *slog.Logger
	registry       *application.Registry
	engine         *application.Engine
	gatherer       prometheus.Gatherer
	snapshots      *statusadapter.Snapshots
	statusRenderer func([]domain.SessionStatus, statusadapter.RenderOptions) (string, error)
	now            func() time.Time
}

func wireApp() (*app, error) {
	profile, err := config.Load(viper.New())
	if err != nil {
		return nil, fmt.Errorf("wire profile: %w", err)
	}
	profile.Discovery.BaseURL = envOrDefault(envDiscoveryURL, profile.Discovery.BaseURL)
	profile.MetricsAddr = envOrDefault(envMetricsAddr, profile.MetricsAddr)

	logger := logging.NewLogger(envOrDefault(logging.EnvLevel, profile.LogLevel), os.Stderr)

	promRegistry := prometheus.NewRegistry()
	promMetrics, err := metrics.NewPrometheus(promRegistry)
	if err != nil {
		return nil, fmt.Errorf("wire metrics: %w", err)
	}

	discoverer := discovery.Client{
		BaseURL:        profile.Discovery.BaseURL,
		HTTPClient:     http.DefaultClient,
		RequestTimeout: profile.Discovery.Timeout,
	}

	snapshots := &statusadapter.Snapshots{}
	registry := application.NewRegistry(discoverer, websocket.Transport{}, profile.Registry,
		application.WithMetrics(promMetrics),
		application.WithObserver(promMetrics),
		application.WithObserver(snapshots),
		application.WithLogger(logger),
	)

	return &app{
		profile:        profile,
		logger:         logger,
		registry:       registry,
		engine:         application.NewEngine(registry, profile.Scenario, logger),
		gatherer:       promRegistry,
		snapshots:      snapshots,
		statusRenderer: statusadapter.Render,
		now:            time.Now,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
