package stats

import (
	"time"

	"rtctester/internal/core/domain"
)

// Summary accumulates min/max/avg over a set of values.
type Summary struct {
	Min   float64
	Max   float64
	Sum   float64
	Count int
}

// Add folds v into the summary.
func (s *Summary) Add(v float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Sum += v
	s.Count++
}

// Avg returns the mean; ok is false when nothing was added.
func (s Summary) Avg() (float64, bool) {
	if s.Count == 0 {
		return 0, false
	}
	return s.Sum / float64(s.Count), true
}

// AggregateReport is derived from one fleet snapshot and never stored.
type AggregateReport struct {
	GeneratedAt time.Time
	RunningTime time.Duration
	Clients     int
	States      map[domain.ConnectionState]int
	// Final is set on the report produced at shutdown.
	Final bool

	// Everything below only covers clients currently Connected.
	Connected  int
	VideoDelay Summary
	AudioDelay Summary
	GOP        Summary
	FPS        Summary
	BPS        Summary

	TotalFrames     int64
	TotalKeyframes  int64
	TotalBytes      int64
	TotalPackets    int64
	TotalPacketLoss int64
}

// AvgGOP is total frames over total keyframes across connected clients.
func (r AggregateReport) AvgGOP() (float64, bool) {
	if r.TotalKeyframes <= 0 {
		return 0, false
	}
	return float64(r.TotalFrames) / float64(r.TotalKeyframes), true
}

// PerConnected divides a total by the number of connected clients.
func (r AggregateReport) PerConnected(total int64) (float64, bool) {
	if r.Connected == 0 {
		return 0, false
	}
	return float64(total) / float64(r.Connected), true
}

// HasConnected reports whether any derived statistic is present.
func (r AggregateReport) HasConnected() bool {
	return r.Connected > 0
}

// BuildReport aggregates snapshots taken at roughly now.
func BuildReport(snaps []domain.ClientSnapshot, now time.Time) AggregateReport {
	r := AggregateReport{
		GeneratedAt: now,
		Clients:     len(snaps),
		States:      make(map[domain.ConnectionState]int, len(domain.ConnectionStates)),
	}
	for _, st := range domain.ConnectionStates {
		r.States[st] = 0
	}

	var firstStart time.Time
	for _, snap := range snaps {
		stat := snap.Stat
		r.States[stat.ConnectionState]++

		if stat.Started() && (firstStart.IsZero() || stat.StartTime.Before(firstStart)) {
			firstStart = stat.StartTime
		}

		if stat.ConnectionState != domain.ConnectionStateConnected {
			continue
		}
		r.Connected++

		if stat.HasVideoDelay {
			r.VideoDelay.Add(stat.VideoDelayMs)
		}
		if stat.HasAudioDelay {
			r.AudioDelay.Add(stat.AudioDelayMs)
		}
		if gop, ok := stat.GOP(); ok {
			r.GOP.Add(gop)
		}
		r.FPS.Add(stat.AvgFPS)
		r.BPS.Add(stat.AvgBPS)

		r.TotalFrames += stat.TotalVideoFrames
		r.TotalKeyframes += stat.TotalVideoKeyframes
		r.TotalBytes += stat.TotalBytes
		r.TotalPackets += stat.TotalPackets
		r.TotalPacketLoss += stat.PacketLoss
	}

	if !firstStart.IsZero() && now.After(firstStart) {
		r.RunningTime = now.Sub(firstStart)
	}
	return r
}
