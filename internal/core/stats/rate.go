package stats

import (
	"math"
	"time"

	"rtctester/internal/core/domain"
)

// Sample is a time-stamped cumulative reading used for rate computation.
type Sample struct {
	Frames int64
	Bytes  int64
	At     time.Time
}

// Rate is an instantaneous rate between two samples.
type Rate struct {
	FPS float64
	BPS float64
}

// ComputeRate returns the frame and bit rate between prev and curr. When the
// two samples collapse onto the same instant held is returned unchanged.
func ComputeRate(prev, curr Sample, held Rate) Rate {
	elapsed := curr.At.Sub(prev.At).Seconds()
	if elapsed <= 0 {
		return held
	}
	return Rate{
		FPS: float64(curr.Frames-prev.Frames) / elapsed,
		BPS: float64(curr.Bytes-prev.Bytes) * 8 / elapsed,
	}
}

// Range tracks a running min/max. Observed distinguishes "no value yet" from a
// real zero.
type Range struct {
	Min      float64
	Max      float64
	Observed bool
}

// Observe widens the range with v.
func (r Range) Observe(v float64) Range {
	if !r.Observed {
		return Range{Min: v, Max: v, Observed: true}
	}
	r.Min = math.Min(r.Min, v)
	r.Max = math.Max(r.Max, v)
	return r
}

// SessionAverages returns the whole-session frame and bit rate. ok is false when
// no time has elapsed since start.
func SessionAverages(totalFrames, totalBytes int64, start, now time.Time) (fps, bps float64, ok bool) {
	elapsed := now.Sub(start).Seconds()
	if start.IsZero() || elapsed <= 0 {
		return 0, 0, false
	}
	return float64(totalFrames) / elapsed, float64(totalBytes) * 8 / elapsed, true
}

// Delay approximates end-to-end latency as the gap between wall-clock time
// since start and the media time the remote timestamps account for.
func Delay(start, now time.Time, remoteElapsedMs int64) float64 {
	wallMs := float64(now.Sub(start)) / float64(time.Millisecond)
	return math.Abs(wallMs - float64(remoteElapsedMs))
}

// Tracker carries the previous tick of a single client's sampling loop. It is
// owned by that loop and is not safe for concurrent use.
type Tracker struct {
	prev Sample
	rate Rate
}

// NewTracker starts tracking from an empty sample taken at start.
func NewTracker(start time.Time) *Tracker {
	return &Tracker{prev: Sample{At: start}}
}

// Rate returns the last computed instantaneous rate.
func (t *Tracker) Rate() Rate {
	return t.rate
}

// Tick folds counters read at now into stat and returns the updated copy.
func (t *Tracker) Tick(stat domain.SessionStat, c domain.Counters, now time.Time) domain.SessionStat {
	curr := Sample{Frames: c.Frames, Bytes: c.Bytes, At: now}
	collapsed := !now.After(t.prev.At)
	t.rate = ComputeRate(t.prev, curr, t.rate)

	if !collapsed {
		// A zero rate only counts once data has started to flow.
		if c.Frames > 0 {
			fps := Range{Min: stat.MinFPS, Max: stat.MaxFPS, Observed: stat.FPSObserved}.Observe(t.rate.FPS)
			stat.MinFPS, stat.MaxFPS, stat.FPSObserved = fps.Min, fps.Max, true
		}
		if c.Bytes > 0 {
			bps := Range{Min: stat.MinBPS, Max: stat.MaxBPS, Observed: stat.BPSObserved}.Observe(t.rate.BPS)
			stat.MinBPS, stat.MaxBPS, stat.BPSObserved = bps.Min, bps.Max, true
		}
		t.prev = curr
	}

	return t.Settle(stat, c, now)
}

// Settle folds totals, session averages and delays without sampling a rate.
// It closes out a partial interval whose instantaneous rate would be noise.
func (t *Tracker) Settle(stat domain.SessionStat, c domain.Counters, now time.Time) domain.SessionStat {
	stat.TotalBytes = c.Bytes
	stat.TotalVideoFrames = c.Frames
	stat.TotalVideoKeyframes = c.Keyframes
	stat.TotalPackets = c.Packets
	stat.PacketLoss = c.Lost

	if fps, bps, ok := SessionAverages(c.Frames, c.Bytes, stat.StartTime, now); ok {
		stat.AvgFPS = fps
		stat.AvgBPS = bps
	}

	if stat.Started() {
		if c.HasVideoElapsed {
			stat.VideoDelayMs = Delay(stat.StartTime, now, c.VideoElapsedMs)
			stat.HasVideoDelay = true
		}
		if c.HasAudioElapsed {
			stat.AudioDelayMs = Delay(stat.StartTime, now, c.AudioElapsedMs)
			stat.HasAudioDelay = true
		}
	}

	return stat
}
