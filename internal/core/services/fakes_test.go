package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"rtctester/internal/core/domain"
	"rtctester/internal/core/ports"
	"rtctester/internal/core/stats"
)

var errConnectRefused = errors.New("connection refused")

type fakeSession struct {
	mu       sync.Mutex
	onStream func(domain.StreamInfo)
	onState  func(domain.ConnectionState)
	counters domain.Counters

	closes atomic.Int32
	closed chan struct{}

	// noStream keeps the session from ever attaching a stream.
	noStream bool

	// With a clock, counters follow a steady stream that starts when the
	// stream attaches instead of growing by a fixed step per poll.
	clock       *fakeClock
	fps         int64
	bytesPerSec int64
	attachedAt  time.Time
}

func newFakeSession() *fakeSession {
	return &fakeSession{closed: make(chan struct{})}
}

func (s *fakeSession) RequestOffer(ctx context.Context) (domain.Offer, error) {
	select {
	case <-s.closed:
		return domain.Offer{}, errors.New("session closed")
	default:
	}
	return domain.Offer{ID: 1, PeerID: 1, SDP: "v=0"}, nil
}

func (s *fakeSession) SendAnswer(ctx context.Context, offer domain.Offer) error {
	if s.noStream {
		return nil
	}
	go func() {
		s.emitState(domain.ConnectionStateChecking)
		s.emitState(domain.ConnectionStateConnected)
		s.mu.Lock()
		fn := s.onStream
		if s.clock != nil {
			s.attachedAt = s.clock.Now()
		}
		s.mu.Unlock()
		if fn != nil {
			fn(domain.StreamInfo{Kind: domain.MediaKindVideo, MimeType: "video/VP8"})
			fn(domain.StreamInfo{Kind: domain.MediaKindAudio, MimeType: "audio/opus"})
		}
	}()
	return nil
}

func (s *fakeSession) OnStreamAttached(fn func(domain.StreamInfo)) {
	s.mu.Lock()
	s.onStream = fn
	s.mu.Unlock()
}

func (s *fakeSession) OnConnectionStateChanged(fn func(domain.ConnectionState)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *fakeSession) hasStateHandler() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onState != nil
}

func (s *fakeSession) emitState(state domain.ConnectionState) {
	s.mu.Lock()
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// PollCounters pretends 30 frames and 125000 bytes arrive per poll, unless the
// session runs on a clock.
func (s *fakeSession) PollCounters() domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock != nil {
		elapsed := int64(s.clock.Now().Sub(s.attachedAt))
		s.counters.Frames = s.fps * elapsed / int64(time.Second)
		s.counters.Bytes = s.bytesPerSec * elapsed / int64(time.Second)
		s.counters.Packets = s.counters.Frames * 3
		return s.counters
	}
	s.counters.Frames += 30
	s.counters.Keyframes++
	s.counters.Bytes += 125000
	s.counters.Packets += 100
	return s.counters
}

func (s *fakeSession) Close() error {
	if s.closes.Add(1) == 1 {
		close(s.closed)
	}
	return nil
}

type fakeTransport struct {
	mu       sync.Mutex
	sessions []*fakeSession
	connects []time.Time

	// fail, when set, decides per connect attempt (0-based) whether to refuse.
	fail     func(n int) bool
	noStream bool

	clock       *fakeClock
	fps         int64
	bytesPerSec int64
}

func (t *fakeTransport) Connect(ctx context.Context, endpoint string) (ports.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.connects)
	t.connects = append(t.connects, time.Now())
	if t.fail != nil && t.fail(n) {
		return nil, errConnectRefused
	}
	s := newFakeSession()
	s.noStream = t.noStream
	s.clock, s.fps, s.bytesPerSec = t.clock, t.fps, t.bytesPerSec
	t.sessions = append(t.sessions, s)
	return s, nil
}

func (t *fakeTransport) connectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.connects)
}

func (t *fakeTransport) connectTimes() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Time(nil), t.connects...)
}

func (t *fakeTransport) allSessions() []*fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeSession(nil), t.sessions...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingWriter struct {
	mu        sync.Mutex
	summaries int
	finals    []stats.AggregateReport
	// events lists "final" and detail client names in write order.
	events []string
}

func (w *recordingWriter) Summary(stats.AggregateReport) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.summaries++
	return nil
}

func (w *recordingWriter) Detail(snap domain.ClientSnapshot, _ time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, snap.Name)
	return nil
}

func (w *recordingWriter) Final(r stats.AggregateReport) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finals = append(w.finals, r)
	w.events = append(w.events, "final")
	return nil
}

func (w *recordingWriter) writes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.events...)
}

func (w *recordingWriter) counts() (summaries, finals int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summaries, len(w.finals)
}

func testClientConfig() ClientConfig {
	return ClientConfig{
		SampleInterval:  20 * time.Millisecond,
		StreamTimeout:   time.Second,
		TeardownTimeout: 200 * time.Millisecond,
	}
}
