package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"rtctester/internal/core/domain"
	"rtctester/internal/core/ports"
	"rtctester/internal/core/stats"
	"rtctester/pkg/logger"
	"rtctester/pkg/tracing"

	"go.uber.org/zap"
)

// ClientConfig tunes a single simulated viewer.
type ClientConfig struct {
	SampleInterval  time.Duration
	StreamTimeout   time.Duration // 0 waits until stopped
	TeardownTimeout time.Duration
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SampleInterval:  time.Second,
		StreamTimeout:   30 * time.Second,
		TeardownTimeout: 2 * time.Second,
	}
}

// statHolder publishes whole SessionStat values. Readers load without locking;
// writers serialize on mu. Once sealed, updates are dropped.
type statHolder struct {
	cur    atomic.Pointer[domain.SessionStat]
	mu     sync.Mutex
	sealed bool
}

func newStatHolder() *statHolder {
	h := &statHolder{}
	h.cur.Store(&domain.SessionStat{ConnectionState: domain.ConnectionStateNew})
	return h
}

func (h *statHolder) load() domain.SessionStat {
	return *h.cur.Load()
}

func (h *statHolder) update(fn func(*domain.SessionStat)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sealed {
		return false
	}
	next := *h.cur.Load()
	fn(&next)
	h.cur.Store(&next)
	return true
}

func (h *statHolder) seal() {
	h.mu.Lock()
	h.sealed = true
	h.mu.Unlock()
}

// Client is one simulated viewer. It runs connect, negotiate and stream on its
// own goroutine and never propagates failures to its caller.
type Client struct {
	name      string
	transport ports.Transport
	cfg       ClientConfig
	logger    *zap.SugaredLogger
	now       func() time.Time

	holder *statHolder
	phase  atomic.Int32

	startOnce    sync.Once
	stopOnce     sync.Once
	teardownOnce sync.Once
	attachOnce   sync.Once
	terminalOnce sync.Once

	stopCh   chan struct{}
	attached chan struct{}
	terminal chan struct{}
	done     chan struct{}

	mu       sync.Mutex
	session  ports.Session
	tornDown bool
}

func NewClient(name string, transport ports.Transport, cfg ClientConfig, log *zap.SugaredLogger) *Client {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = time.Second
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = 2 * time.Second
	}
	return &Client{
		name:      name,
		transport: transport,
		cfg:       cfg,
		logger:    logger.ForClient(log, name),
		now:       time.Now,
		holder:    newStatHolder(),
		stopCh:    make(chan struct{}),
		attached:  make(chan struct{}),
		terminal:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) Phase() domain.ClientPhase {
	return domain.ClientPhase(c.phase.Load())
}

// Done is closed once the client has finished. Stop closes it right away for a
// client that never started.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Snapshot returns a copy of the last published stats. It never blocks on the
// sampling loop.
func (c *Client) Snapshot() domain.ClientSnapshot {
	return domain.ClientSnapshot{
		Name:  c.name,
		Phase: c.Phase(),
		Stat:  c.holder.load(),
	}
}

// Report writes the client's detail block.
func (c *Client) Report(w ports.ReportWriter) error {
	return w.Detail(c.Snapshot(), c.now())
}

// Start launches the client against target and returns immediately. Only the
// first call has any effect, and none once Stop has been called.
func (c *Client) Start(ctx context.Context, target string) {
	c.startOnce.Do(func() {
		go c.run(ctx, target)
	})
}

// Stop tears the client down. It is idempotent and safe to call before, during
// or after Start.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.startOnce.Do(func() {
		c.setPhase(domain.ClientStopped)
		close(c.done)
	})
	c.teardown()
}

func (c *Client) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *Client) run(parent context.Context, target string) {
	defer close(c.done)

	if c.stopped() {
		c.setPhase(domain.ClientStopped)
		return
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.setPhase(domain.ClientConnecting)
	session, err := c.negotiate(ctx, target)
	if err != nil {
		c.fail(err)
		c.teardown()
		return
	}

	if err := c.awaitStream(ctx); err != nil {
		c.fail(err)
		c.teardown()
		return
	}

	c.setPhase(domain.ClientStreaming)
	stat := c.holder.load()
	c.logger.Infow("client has started", "video", stat.VideoMimeType, "audio", stat.AudioMimeType)

	runSampler(ctx, weak.Make(c.holder), session, samplerConfig{
		interval: c.cfg.SampleInterval,
		start:    stat.StartTime,
		now:      c.now,
		terminal: c.terminal,
	})

	if c.holder.load().ConnectionState == domain.ConnectionStateFailed && !c.stopped() {
		c.logger.Warnw("connection failed while streaming")
		c.setPhase(domain.ClientFailed)
	} else {
		c.setPhase(domain.ClientStopped)
	}
	c.teardown()
}

func (c *Client) negotiate(ctx context.Context, target string) (ports.Session, error) {
	spanCtx, span := tracing.StartClientSpan(ctx, c.name, "connect")
	session, err := c.transport.Connect(spanCtx, target)
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	if !c.attach(session) {
		c.closeSession(session)
		return nil, domain.ErrClientStopped
	}

	session.OnConnectionStateChanged(c.onConnectionState)
	session.OnStreamAttached(c.onStreamAttached)

	spanCtx, span = tracing.StartClientSpan(ctx, c.name, "request_offer")
	offer, err := session.RequestOffer(spanCtx)
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	spanCtx, span = tracing.StartClientSpan(ctx, c.name, "answer")
	err = session.SendAnswer(spanCtx, offer)
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (c *Client) awaitStream(ctx context.Context) error {
	var timeout <-chan time.Time
	if c.cfg.StreamTimeout > 0 {
		t := time.NewTimer(c.cfg.StreamTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-c.attached:
		return nil
	case <-c.terminal:
		return domain.ErrConnectionEnded
	case <-timeout:
		return domain.ErrStreamTimeout
	case <-ctx.Done():
		return domain.ErrClientStopped
	}
}

func (c *Client) attach(s ports.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tornDown {
		return false
	}
	c.session = s
	return true
}

// fail records a startup failure. A failure caused by Stop is not one, and a
// terminal state already reported by the transport is kept.
func (c *Client) fail(err error) {
	if c.stopped() || errors.Is(err, domain.ErrClientStopped) {
		c.setPhase(domain.ClientStopped)
		return
	}
	c.logger.Errorw("client failed", "error", err)
	c.holder.update(func(s *domain.SessionStat) {
		if !s.ConnectionState.IsTerminal() {
			s.ConnectionState = domain.ConnectionStateFailed
		}
	})
	c.setPhase(domain.ClientFailed)
}

func (c *Client) onConnectionState(state domain.ConnectionState) {
	if !c.holder.update(func(s *domain.SessionStat) { s.ConnectionState = state }) {
		return
	}
	c.logger.Debugw("connection state has changed", "state", state.String())
	if state.IsTerminal() {
		c.terminalOnce.Do(func() { close(c.terminal) })
	}
}

func (c *Client) onStreamAttached(info domain.StreamInfo) {
	now := c.now()
	c.holder.update(func(s *domain.SessionStat) {
		if !s.Started() {
			s.StartTime = now
		}
		switch info.Kind {
		case domain.MediaKindVideo:
			s.VideoMimeType = info.MimeType
		case domain.MediaKindAudio:
			s.AudioMimeType = info.MimeType
		}
	})
	c.logger.Debugw("stream has started", "kind", string(info.Kind), "mime_type", info.MimeType)
	c.attachOnce.Do(func() { close(c.attached) })
}

// setPhase moves to p unless the client already reached a final phase.
func (c *Client) setPhase(p domain.ClientPhase) {
	for {
		cur := c.phase.Load()
		if domain.ClientPhase(cur).Done() {
			return
		}
		if c.phase.CompareAndSwap(cur, int32(p)) {
			return
		}
	}
}

// teardown runs exactly once, whichever of Stop or natural termination gets
// there first. Stats recorded before it are kept; later notifications are
// dropped.
func (c *Client) teardown() {
	c.teardownOnce.Do(func() {
		c.mu.Lock()
		c.tornDown = true
		s := c.session
		c.mu.Unlock()

		c.holder.seal()
		if s != nil {
			c.closeSession(s)
		}
	})
}

func (c *Client) closeSession(s ports.Session) {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Close() }()

	select {
	case err := <-errCh:
		if err != nil {
			c.logger.Warnw("failed to close session", "error", err)
		}
	case <-time.After(c.cfg.TeardownTimeout):
		c.logger.Warnw("session close timed out", "timeout", c.cfg.TeardownTimeout)
	}
}

type samplerConfig struct {
	interval time.Duration
	start    time.Time
	now      func() time.Time
	terminal <-chan struct{}
}

// runSampler folds transport counters into the holder once per interval. It
// holds the holder weakly and exits when the holder is gone or sealed, when
// the connection reaches a terminal state, or when ctx is done. A terminal
// state settles the counters one last time first.
func runSampler(ctx context.Context, ref weak.Pointer[statHolder], src ports.Session, cfg samplerConfig) {
	tracker := stats.NewTracker(cfg.start)
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cfg.terminal:
			if h := ref.Value(); h != nil {
				counters := src.PollCounters()
				now := cfg.now()
				h.update(func(s *domain.SessionStat) {
					*s = tracker.Settle(*s, counters, now)
				})
			}
			return
		case <-ticker.C:
		}

		h := ref.Value()
		if h == nil {
			return
		}
		counters := src.PollCounters()
		now := cfg.now()
		terminal := false
		ok := h.update(func(s *domain.SessionStat) {
			*s = tracker.Tick(*s, counters, now)
			terminal = s.ConnectionState.IsTerminal()
		})
		if !ok || terminal {
			return
		}
	}
}
