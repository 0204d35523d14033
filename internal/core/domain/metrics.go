package domain

import "time"

// SessionStat is one client's view of its media session. A Client publishes a
// fresh copy on every sampling tick; readers never see a partially updated value.
type SessionStat struct {
	StartTime       time.Time
	ConnectionState ConnectionState

	VideoMimeType string
	AudioMimeType string

	TotalBytes          int64
	TotalVideoFrames    int64
	TotalVideoKeyframes int64
	TotalPackets        int64
	PacketLoss          int64

	AvgFPS float64
	MinFPS float64
	MaxFPS float64
	AvgBPS float64
	MinBPS float64
	MaxBPS float64

	// FPSObserved and BPSObserved are set once the first real rate has been
	// recorded into Min/Max.
	FPSObserved bool
	BPSObserved bool

	VideoDelayMs  float64
	AudioDelayMs  float64
	HasVideoDelay bool
	HasAudioDelay bool
}

// Started reports whether the stream has attached.
func (s SessionStat) Started() bool {
	return !s.StartTime.IsZero()
}

// RunningTime is the time elapsed since the stream attached, zero before that.
func (s SessionStat) RunningTime(now time.Time) time.Duration {
	if !s.Started() || now.Before(s.StartTime) {
		return 0
	}
	return now.Sub(s.StartTime)
}

// GOP returns frames per keyframe. ok is false when no keyframe has arrived.
func (s SessionStat) GOP() (gop float64, ok bool) {
	if s.TotalVideoKeyframes <= 0 {
		return 0, false
	}
	return float64(s.TotalVideoFrames) / float64(s.TotalVideoKeyframes), true
}

// Counters is a cumulative reading taken from the transport.
type Counters struct {
	Bytes     int64
	Frames    int64
	Keyframes int64
	Packets   int64
	Lost      int64

	// Elapsed media time implied by the remote RTP timestamps since the first
	// packet of each kind.
	VideoElapsedMs  int64
	AudioElapsedMs  int64
	HasVideoElapsed bool
	HasAudioElapsed bool
}

// ClientSnapshot pairs a client name with a copy of its stats.
type ClientSnapshot struct {
	Name  string
	Phase ClientPhase
	Stat  SessionStat
}
