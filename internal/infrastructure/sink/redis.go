package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rtctester/internal/core/ports"
	"rtctester/internal/core/stats"
	"rtctester/internal/infrastructure/report"
	"rtctester/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher is the subset of a redis client the sink uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type Config struct {
	Channel string
	// FinalTTL is how long the final report stays under "<channel>:<run id>".
	FinalTTL time.Duration
	Timeout  time.Duration
	Breaker  circuitbreaker.Config
}

func DefaultConfig() Config {
	return Config{
		Channel:  "rtctester:reports",
		FinalTTL: 24 * time.Hour,
		Timeout:  2 * time.Second,
		Breaker:  circuitbreaker.DefaultConfig(),
	}
}

// RedisSink publishes every aggregate report as JSON on a pub/sub channel and
// stores the final one under a per-run key. Failures are logged and never
// interrupt the test. After repeated failures periodic reports are skipped
// until the breaker lets a probe through; the final report is always tried.
type RedisSink struct {
	client  Publisher
	runID   string
	config  Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewRedisSink(client Publisher, runID string, config Config, logger *zap.SugaredLogger) *RedisSink {
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}
	breaker := circuitbreaker.New(config.Breaker)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("report publishing state has changed", "from", from.String(), "to", to.String())
	})
	return &RedisSink{client: client, runID: runID, config: config, breaker: breaker, logger: logger}
}

var _ ports.ReportObserver = (*RedisSink)(nil)

func (s *RedisSink) ObserveReport(ctx context.Context, r stats.AggregateReport) {
	var err error
	if r.Final {
		err = s.publish(ctx, r)
	} else {
		err = s.breaker.Execute(ctx, func(ctx context.Context) error {
			return s.publish(ctx, r)
		})
	}
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		s.logger.Debugw("skipped report while redis is failing", "channel", s.config.Channel)
	case err != nil:
		s.logger.Warnw("failed to publish report", "channel", s.config.Channel, "final", r.Final, "error", err)
	}
}

func (s *RedisSink) publish(ctx context.Context, r stats.AggregateReport) error {
	data, err := report.NewDocument(s.runID, r).Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if err := s.client.Publish(ctx, s.config.Channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}
	if r.Final {
		if err := s.client.Set(ctx, s.FinalKey(), data, s.config.FinalTTL).Err(); err != nil {
			return fmt.Errorf("failed to store final report: %w", err)
		}
	}

	s.logger.Debugw("published report", "channel", s.config.Channel, "final", r.Final)
	return nil
}

// FinalKey is where the final report of this run is stored.
func (s *RedisSink) FinalKey() string {
	return s.config.Channel + ":" + s.runID
}

// NewRedisClient connects to redis and checks the connection.
func NewRedisClient(ctx context.Context, address, password string, db int, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infow("connected to Redis", "address", address, "db", db)
	return client, nil
}
