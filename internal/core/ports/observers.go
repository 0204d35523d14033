package ports

import (
	"context"
	"time"

	"rtctester/internal/core/domain"
	"rtctester/internal/core/stats"
)

// ReportObserver receives every aggregate report the orchestrator produces.
// Implementations must return quickly; slow work belongs in their own goroutine.
type ReportObserver interface {
	ObserveReport(ctx context.Context, report stats.AggregateReport)
}

// ReportObserverFunc adapts a function to ReportObserver.
type ReportObserverFunc func(ctx context.Context, report stats.AggregateReport)

func (f ReportObserverFunc) ObserveReport(ctx context.Context, report stats.AggregateReport) {
	f(ctx, report)
}

// ReportWriter renders reports for a human reader.
type ReportWriter interface {
	Summary(report stats.AggregateReport) error
	Detail(snap domain.ClientSnapshot, now time.Time) error
	// Final writes the closing summary. Each client's Detail follows it.
	Final(report stats.AggregateReport) error
}
