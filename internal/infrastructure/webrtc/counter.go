package webrtc

import (
	"sync"

	"rtctester/internal/core/domain"

	"github.com/pion/rtp"
)

// Counter accumulates receive statistics over every track of one session.
type Counter struct {
	mu        sync.Mutex
	bytes     int64
	packets   int64
	lost      int64
	frames    int64
	keyframes int64
	video     timeline
	audio     timeline
}

// timeline converts RTP timestamps into media time elapsed since the first
// packet, across 32-bit wraparound.
type timeline struct {
	clockRate uint32
	started   bool
	last      uint32
	ticks     int64
}

func (t *timeline) observe(ts uint32) {
	if !t.started {
		t.started, t.last = true, ts
		return
	}
	if d := int32(ts - t.last); d > 0 {
		t.ticks += int64(d)
		t.last = ts
	}
}

func (t *timeline) elapsedMs() (int64, bool) {
	if !t.started || t.clockRate == 0 {
		return 0, false
	}
	return t.ticks * 1000 / int64(t.clockRate), true
}

func NewCounter() *Counter {
	return &Counter{}
}

// Track returns the per-track state for a newly attached track.
func (c *Counter) Track(kind domain.MediaKind, mimeType string, clockRate uint32) *TrackCounter {
	c.mu.Lock()
	if kind == domain.MediaKindVideo {
		c.video.clockRate = clockRate
	} else {
		c.audio.clockRate = clockRate
	}
	c.mu.Unlock()
	return &TrackCounter{
		parent:   c,
		kind:     kind,
		keyframe: detectorFor(mimeType),
	}
}

// Snapshot returns the cumulative counters.
func (c *Counter) Snapshot() domain.Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := domain.Counters{
		Bytes:     c.bytes,
		Frames:    c.frames,
		Keyframes: c.keyframes,
		Packets:   c.packets,
		Lost:      c.lost,
	}
	out.VideoElapsedMs, out.HasVideoElapsed = c.video.elapsedMs()
	out.AudioElapsedMs, out.HasAudioElapsed = c.audio.elapsedMs()
	return out
}

func gapMask(n uint16) uint64 {
	if n >= lossWindow {
		return ^uint64(0)
	}
	return uint64(1)<<n - 1
}

// TrackCounter is owned by the goroutine reading one track.
type TrackCounter struct {
	parent   *Counter
	kind     domain.MediaKind
	keyframe keyframeDetector

	hasSeq  bool
	lastSeq uint16
	// missing has bit i set when lastSeq-1-i was counted as lost.
	missing uint64
	// inKeyframe is set once the current frame has been counted as a keyframe.
	inKeyframe bool
}

// lossWindow is how far behind the newest packet a late arrival still cancels
// the loss its gap was counted as.
const lossWindow = 64

// Observe records pkt, which took size bytes on the wire, and returns the
// change in lost packets it implies: the sequence gap before it, or -1 for a
// late packet that fills a gap counted earlier.
func (t *TrackCounter) Observe(pkt *rtp.Packet, size int) int64 {
	var lost int64
	if t.hasSeq {
		d := pkt.SequenceNumber - t.lastSeq
		switch {
		case d == 0:
			// duplicate
		case d < 0x8000:
			lost = int64(d) - 1
			t.missing = t.missing<<d | gapMask(d-1)
			t.lastSeq = pkt.SequenceNumber
		default:
			back := t.lastSeq - pkt.SequenceNumber
			if bit := uint64(1) << (back - 1); back <= lossWindow && t.missing&bit != 0 {
				t.missing &^= bit
				lost = -1
			}
		}
	} else {
		t.hasSeq, t.lastSeq = true, pkt.SequenceNumber
	}

	var frameEnd, keyframe bool
	if t.kind == domain.MediaKindVideo {
		if !t.inKeyframe && t.keyframe(pkt.Payload) {
			t.inKeyframe = true
			keyframe = true
		}
		if pkt.Marker {
			frameEnd = true
			t.inKeyframe = false
		}
	}

	c := t.parent
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytes += int64(size)
	c.packets++
	c.lost += lost
	if frameEnd {
		c.frames++
	}
	if keyframe {
		c.keyframes++
	}
	if t.kind == domain.MediaKindVideo {
		c.video.observe(pkt.Timestamp)
	} else {
		c.audio.observe(pkt.Timestamp)
	}
	return lost
}
