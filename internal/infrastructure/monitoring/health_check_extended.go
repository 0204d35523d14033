package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is the part of a redis client the health check needs.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// AddRedisCheck adds a check that the result sink's redis is reachable.
func (h *HealthChecker) AddRedisCheck(client Pinger, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, timeout)
}

// AddReportCheck adds a check that aggregate reports are still being produced:
// the latest one must be younger than maxAge. The check passes before the
// first report and after the final one.
func (h *HealthChecker) AddReportCheck(s *StatusServer, maxAge time.Duration) {
	h.AddCheck("reports", func(context.Context) (bool, error) {
		r, ok := s.Latest()
		if !ok || r.Final {
			return true, nil
		}
		if age := h.now().Sub(r.GeneratedAt); age > maxAge {
			return false, fmt.Errorf("last report is %s old", age.Round(time.Second))
		}
		return true, nil
	}, 0)
}
