package webrtc

import (
	"context"
	"errors"
	"sync"

	"rtctester/internal/core/domain"
	"rtctester/internal/infrastructure/signal"
	apperrors "rtctester/pkg/errors"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var errSessionClosed = errors.New("session closed")

// Session is one receive-only viewer: a signaling socket plus the peer
// connection negotiated over it.
type Session struct {
	signal  *signal.Client
	config  Config
	counter *Counter
	pli     *rate.Limiter
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	onStream func(domain.StreamInfo)
	onState  func(domain.ConnectionState)
	closed   bool

	closeOnce sync.Once
}

func newSession(sig *signal.Client, config Config, logger *zap.SugaredLogger) *Session {
	s := &Session{
		signal:  sig,
		config:  config,
		counter: NewCounter(),
		logger:  logger,
	}
	if config.KeyframeRequestInterval > 0 {
		s.pli = rate.NewLimiter(rate.Every(config.KeyframeRequestInterval), 1)
	}
	return s
}

func (s *Session) RequestOffer(ctx context.Context) (domain.Offer, error) {
	return s.signal.RequestOffer(ctx)
}

func (s *Session) OnStreamAttached(fn func(domain.StreamInfo)) {
	s.mu.Lock()
	s.onStream = fn
	s.mu.Unlock()
}

func (s *Session) OnConnectionStateChanged(fn func(domain.ConnectionState)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *Session) PollCounters() domain.Counters {
	return s.counter.Snapshot()
}

// SendAnswer builds a peer connection for offer, waits for ICE gathering to
// finish and sends the complete answer.
func (s *Session) SendAnswer(ctx context.Context, offer domain.Offer) error {
	m, err := newMediaEngine()
	if err != nil {
		return apperrors.NewNegotiationError(err, "register codecs")
	}
	settings := webrtc.SettingEngine{}
	if s.config.PortRange.Min > 0 && s.config.PortRange.Max > 0 {
		if err := settings.SetEphemeralUDPPortRange(s.config.PortRange.Min, s.config.PortRange.Max); err != nil {
			return apperrors.NewNegotiationError(err, "set port range")
		}
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(settings))

	pc, err := api.NewPeerConnection(peerConfiguration(s.config, offer))
	if err != nil {
		return apperrors.NewNegotiationError(err, "create peer connection")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		pc.Close()
		return apperrors.NewNegotiationError(errSessionClosed, "create peer connection")
	}
	s.pc = pc
	s.mu.Unlock()

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.mu.Lock()
		fn := s.onState
		s.mu.Unlock()
		if fn != nil {
			fn(connectionState(state))
		}
	})
	pc.OnTrack(s.handleTrack)

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		return apperrors.NewNegotiationError(err, "set remote description")
	}
	for _, c := range offer.Candidates {
		init := webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: c.SDPMLineIndex}
		if err := pc.AddICECandidate(init); err != nil {
			s.logger.Warnw("failed to add remote candidate", "candidate", c.Candidate, "error", err)
		}
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return apperrors.NewNegotiationError(err, "create answer")
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return apperrors.NewNegotiationError(err, "set local description")
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return apperrors.NewNegotiationError(ctx.Err(), "gather candidates")
	}

	local := pc.LocalDescription()
	if err := s.signal.SendAnswer(ctx, domain.Answer{OfferID: offer.ID, SDP: local.SDP}); err != nil {
		return err
	}
	s.signal.StartReadPump(func(err error) {
		s.logger.Debugw("signaling channel closed by remote", "error", err)
	})
	return nil
}

func (s *Session) handleTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	kind := mediaKind(track.Kind())
	codec := track.Codec()

	s.mu.Lock()
	fn := s.onStream
	s.mu.Unlock()
	if fn != nil {
		fn(domain.StreamInfo{Kind: kind, MimeType: codec.MimeType})
	}

	go s.drainRTCP(receiver)

	tc := s.counter.Track(kind, codec.MimeType, codec.ClockRate)
	if kind == domain.MediaKindVideo {
		s.requestKeyframe(track.SSRC())
	}

	buf := make([]byte, 1500)
	pkt := &rtp.Packet{}
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			s.logger.Debugw("dropping malformed rtp packet", "error", err)
			continue
		}
		if lost := tc.Observe(pkt, n); lost > 0 && kind == domain.MediaKindVideo {
			s.requestKeyframe(track.SSRC())
		}
	}
}

// drainRTCP keeps interceptors moving; the reports themselves are not used.
func (s *Session) drainRTCP(receiver *webrtc.RTPReceiver) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := receiver.Read(buf); err != nil {
			return
		}
	}
}

func (s *Session) requestKeyframe(ssrc webrtc.SSRC) {
	if s.pli == nil || !s.pli.Allow() {
		return
	}
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return
	}
	if err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}}); err != nil {
		s.logger.Debugw("failed to send keyframe request", "error", err)
	}
}

// Close drops the signaling socket and the peer connection without waiting for
// the remote side.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pc := s.pc
		s.mu.Unlock()

		err = s.signal.Close()
		if pc != nil {
			err = errors.Join(err, pc.Close())
		}
	})
	return err
}
