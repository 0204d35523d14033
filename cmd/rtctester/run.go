package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"rtctester/internal/core/domain"
	"rtctester/internal/core/ports"
	"rtctester/internal/core/services"
	"rtctester/internal/infrastructure/middleware"
	"rtctester/internal/infrastructure/monitoring"
	"rtctester/internal/infrastructure/report"
	"rtctester/internal/infrastructure/signal"
	"rtctester/internal/infrastructure/sink"
	webrtcinfra "rtctester/internal/infrastructure/webrtc"
	"rtctester/pkg/config"
	"rtctester/pkg/logger"
	"rtctester/pkg/retry"
	"rtctester/pkg/tracing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// run wires the tester from cfg and blocks until the final report is out.
func run(ctx context.Context, cfg *config.Config, out io.Writer, color bool) error {
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx, zapLogger.Sugar())

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "rtctester",
		JaegerURL:   cfg.Tracing.JaegerURL,
		RunID:       runID,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing disabled", "error", err)
	} else {
		defer shutdownWithTimeout(log, "tracer", tp.Shutdown)
	}

	var observers []ports.ReportObserver
	var health *monitoring.HealthChecker

	if cfg.Monitoring.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		health = monitoring.NewHealthChecker()
		status := monitoring.NewStatusServer(monitoring.StatusServerConfig{
			Address: cfg.Monitoring.Address,
			RunID:   runID,
			RateLimit: middleware.RateLimitConfig{
				RequestsPerSecond: cfg.Monitoring.RateLimit.RequestsPerSecond,
				Burst:             cfg.Monitoring.RateLimit.Burst,
			},
		}, reg, health, log)
		health.AddReportCheck(status, 3*cfg.Test.ReportInterval)

		if _, err := status.Start(); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer shutdownWithTimeout(log, "status server", status.Shutdown)
		observers = append(observers, monitoring.NewPrometheusCollector(reg), status)
	}

	if cfg.Redis.Enabled {
		client, err := sink.NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Warnw("redis sink disabled", "address", cfg.Redis.Address, "error", err)
		} else {
			defer client.Close()
			sinkCfg := sink.DefaultConfig()
			sinkCfg.Channel = cfg.Redis.Channel
			observers = append(observers, sink.NewRedisSink(client, runID, sinkCfg, log))
			if health != nil {
				health.AddRedisCheck(client, time.Second)
			}
		}
	}

	transport := webrtcinfra.NewTransport(transportConfig(cfg), log)
	fleet := services.NewFleet(transport, clientConfig(cfg), log)
	orchestrator := services.NewOrchestrator(fleet, report.NewPrinter(out, color), services.RunOptions{
		Target:             cfg.Test.URL,
		Clients:            cfg.Test.Clients,
		ConnectionInterval: cfg.Test.ConnectionInterval,
		ReportInterval:     cfg.Test.ReportInterval,
		Lifetime:           cfg.Test.Lifetime,
		StopOnCompletion:   cfg.Test.StopOnCompletion,
	}, log, observers...)

	if err := orchestrator.Run(ctx); err != nil {
		return err
	}
	log.Debugw("run finished", "trigger", orchestrator.Trigger().String())
	return nil
}

func transportConfig(cfg *config.Config) webrtcinfra.Config {
	servers := make([]domain.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		servers = append(servers, domain.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.Signal.ConnectRetries
	if cfg.Signal.RetryDelay > 0 {
		retryCfg.InitialDelay = cfg.Signal.RetryDelay
	}

	tc := webrtcinfra.Config{
		ICEServers:              servers,
		KeyframeRequestInterval: cfg.WebRTC.KeyframeRequestInterval,
		Signal: signal.Config{
			ConnectTimeout: cfg.Signal.ConnectTimeout,
			WriteTimeout:   cfg.Signal.WriteTimeout,
			Retry:          retryCfg,
		},
	}
	tc.PortRange.Min = cfg.WebRTC.PortRange.Min
	tc.PortRange.Max = cfg.WebRTC.PortRange.Max
	return tc
}

func clientConfig(cfg *config.Config) services.ClientConfig {
	return services.ClientConfig{
		SampleInterval:  cfg.Test.SampleInterval,
		StreamTimeout:   cfg.Test.StreamTimeout,
		TeardownTimeout: cfg.Test.TeardownTimeout,
	}
}

func shutdownWithTimeout(log *zap.SugaredLogger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warnw("shutdown failed", "component", name, "error", err)
	}
}
