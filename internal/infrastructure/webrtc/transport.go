package webrtc

import (
	"context"
	"time"

	"rtctester/internal/core/domain"
	"rtctester/internal/core/ports"
	"rtctester/internal/infrastructure/signal"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config configures every peer connection the transport creates.
type Config struct {
	ICEServers []domain.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	// KeyframeRequestInterval bounds how often a session sends a PLI. 0 never
	// requests keyframes.
	KeyframeRequestInterval time.Duration
	Signal                  signal.Config
}

// Transport dials the signaling endpoint and negotiates receive-only pion
// peer connections.
type Transport struct {
	config Config
	logger *zap.SugaredLogger
}

func NewTransport(config Config, logger *zap.SugaredLogger) *Transport {
	return &Transport{config: config, logger: logger}
}

var _ ports.Transport = (*Transport)(nil)

func (t *Transport) Connect(ctx context.Context, endpoint string) (ports.Session, error) {
	sig, err := signal.Dial(ctx, endpoint, t.config.Signal, t.logger)
	if err != nil {
		return nil, err
	}
	return newSession(sig, t.config, t.logger), nil
}

func newMediaEngine() (*webrtc.MediaEngine, error) {
	videoFeedback := []webrtc.RTCPFeedback{
		{Type: webrtc.TypeRTCPFBNACK},
		{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
		{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
		{Type: webrtc.TypeRTCPFBGoogREMB},
	}

	codecs := []struct {
		params webrtc.RTPCodecParameters
		kind   webrtc.RTPCodecType
	}{
		{webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
				RTCPFeedback: videoFeedback},
			PayloadType: 102,
		}, webrtc.RTPCodecTypeVideo},
		{webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000,
				RTCPFeedback: videoFeedback},
			PayloadType: 96,
		}, webrtc.RTPCodecTypeVideo},
		{webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2,
				SDPFmtpLine: "minptime=10;useinbandfec=1"},
			PayloadType: 111,
		}, webrtc.RTPCodecTypeAudio},
	}

	m := &webrtc.MediaEngine{}
	for _, c := range codecs {
		if err := m.RegisterCodec(c.params, c.kind); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// peerConfiguration merges configured ICE servers with the relays the offer
// supplies. Relays in the offer force relay-only candidates.
func peerConfiguration(cfg Config, offer domain.Offer) webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers)+len(offer.ICEServers))
	for _, s := range append(append([]domain.ICEServer(nil), cfg.ICEServers...), offer.ICEServers...) {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, server)
	}

	config := webrtc.Configuration{
		ICEServers:   servers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}
	if len(offer.ICEServers) > 0 {
		config.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}
	return config
}

func connectionState(s webrtc.ICEConnectionState) domain.ConnectionState {
	switch s {
	case webrtc.ICEConnectionStateChecking:
		return domain.ConnectionStateChecking
	case webrtc.ICEConnectionStateConnected:
		return domain.ConnectionStateConnected
	case webrtc.ICEConnectionStateCompleted:
		return domain.ConnectionStateCompleted
	case webrtc.ICEConnectionStateDisconnected:
		return domain.ConnectionStateDisconnected
	case webrtc.ICEConnectionStateFailed:
		return domain.ConnectionStateFailed
	case webrtc.ICEConnectionStateClosed:
		return domain.ConnectionStateClosed
	default:
		return domain.ConnectionStateNew
	}
}

func mediaKind(k webrtc.RTPCodecType) domain.MediaKind {
	if k == webrtc.RTPCodecTypeAudio {
		return domain.MediaKindAudio
	}
	return domain.MediaKindVideo
}
