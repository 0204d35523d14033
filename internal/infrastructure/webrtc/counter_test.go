package webrtc

import (
	"testing"

	"rtctester/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// VP8 payloads: descriptor byte, then the first byte of the VP8 payload header
// and some filler so the descriptor parser has enough to read.
var (
	vp8KeyStart   = []byte{0x10, 0x00, 0x9d, 0x01, 0x2a}
	vp8DeltaStart = []byte{0x10, 0x01, 0x00, 0x00, 0x00}
	vp8Continue   = []byte{0x00, 0x00, 0x00, 0x00, 0x00}
)

func packet(seq uint16, ts uint32, marker bool, payload []byte) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: seq, Timestamp: ts, Marker: marker},
		Payload: payload,
	}
}

func TestTrackCounter_FramesKeyframesAndBytes(t *testing.T) {
	c := NewCounter()
	tc := c.Track(domain.MediaKindVideo, webrtc.MimeTypeVP8, 90000)

	// Keyframe split over three packets, then two single-packet delta frames.
	tc.Observe(packet(1, 0, false, vp8KeyStart), 1200)
	tc.Observe(packet(2, 0, false, vp8Continue), 1200)
	tc.Observe(packet(3, 0, true, vp8Continue), 600)
	tc.Observe(packet(4, 3000, true, vp8DeltaStart), 300)
	tc.Observe(packet(5, 6000, true, vp8DeltaStart), 300)

	got := c.Snapshot()
	assert.Equal(t, int64(3600), got.Bytes)
	assert.Equal(t, int64(5), got.Packets)
	assert.Equal(t, int64(3), got.Frames)
	assert.Equal(t, int64(1), got.Keyframes)
	assert.Equal(t, int64(0), got.Lost)
	require.True(t, got.HasVideoElapsed)
	assert.Equal(t, int64(66), got.VideoElapsedMs)
	assert.False(t, got.HasAudioElapsed)
}

func TestTrackCounter_SequenceGapsAndWrap(t *testing.T) {
	c := NewCounter()
	tc := c.Track(domain.MediaKindAudio, webrtc.MimeTypeOpus, 48000)

	assert.Equal(t, int64(0), tc.Observe(packet(65533, 4294966336, false, []byte{1}), 100))
	assert.Equal(t, int64(1), tc.Observe(packet(65535, 0, false, []byte{1}), 100))
	assert.Equal(t, int64(0), tc.Observe(packet(0, 960, false, []byte{1}), 100), "wrap is not loss")
	assert.Equal(t, int64(0), tc.Observe(packet(0, 960, false, []byte{1}), 100), "duplicate")
	assert.Equal(t, int64(-1), tc.Observe(packet(65534, 4294966336, false, []byte{1}), 100), "late packet fills the gap")
	assert.Equal(t, int64(0), tc.Observe(packet(65534, 4294966336, false, []byte{1}), 100), "gap already filled")
	assert.Equal(t, int64(2), tc.Observe(packet(3, 1920, false, []byte{1}), 100))

	got := c.Snapshot()
	assert.Equal(t, int64(2), got.Lost)
	assert.Equal(t, int64(0), got.Frames, "audio has no frames")
	require.True(t, got.HasAudioElapsed)
	// 960 + 960 + 960 ticks at 48kHz across the 32-bit wrap.
	assert.Equal(t, int64(60), got.AudioElapsedMs)
}

func TestTrackCounter_ReorderingIsNotLoss(t *testing.T) {
	c := NewCounter()
	tc := c.Track(domain.MediaKindAudio, webrtc.MimeTypeOpus, 48000)

	for _, seq := range []uint16{100, 101, 103, 102, 104, 106, 105, 107} {
		tc.Observe(packet(seq, uint32(seq)*960, false, []byte{1}), 100)
	}
	assert.Equal(t, int64(0), c.Snapshot().Lost)

	// A packet further behind than the window stays counted as lost.
	tc.Observe(packet(300, 300*960, false, []byte{1}), 100)
	assert.Equal(t, int64(192), c.Snapshot().Lost)
	assert.Equal(t, int64(0), tc.Observe(packet(108, 108*960, false, []byte{1}), 100))
	assert.Equal(t, int64(-1), tc.Observe(packet(299, 299*960, false, []byte{1}), 100))
	assert.Equal(t, int64(191), c.Snapshot().Lost)
}

func TestIsH264Keyframe(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
		want    bool
	}{
		{"empty", nil, false},
		{"idr", []byte{0x65, 0x88}, true},
		{"sps", []byte{0x67, 0x42}, true},
		{"non-idr slice", []byte{0x41, 0x9a}, false},
		{"stap-a with sps", []byte{0x78, 0x00, 0x02, 0x67, 0x42, 0x00, 0x02, 0x68, 0xce}, true},
		{"stap-a without idr", []byte{0x78, 0x00, 0x02, 0x41, 0x9a}, false},
		{"stap-a truncated", []byte{0x78, 0x00, 0x09, 0x67}, false},
		{"fu-a idr start", []byte{0x7c, 0x85, 0xb8}, true},
		{"fu-a idr middle", []byte{0x7c, 0x05, 0xb8}, false},
		{"fu-a non-idr start", []byte{0x7c, 0x81, 0x9a}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isH264Keyframe(tc.payload))
		})
	}
}

func TestIsVP8Keyframe(t *testing.T) {
	assert.True(t, isVP8Keyframe(vp8KeyStart))
	assert.False(t, isVP8Keyframe(vp8DeltaStart))
	assert.False(t, isVP8Keyframe(vp8Continue), "not the start of a partition")
	assert.False(t, isVP8Keyframe([]byte{0x10}))
}

func TestH264KeyframeCountedOncePerFrame(t *testing.T) {
	c := NewCounter()
	tc := c.Track(domain.MediaKindVideo, webrtc.MimeTypeH264, 90000)

	tc.Observe(packet(10, 0, false, []byte{0x67, 0x42}), 20) // SPS
	tc.Observe(packet(11, 0, false, []byte{0x68, 0xce}), 10) // PPS
	tc.Observe(packet(12, 0, true, []byte{0x65, 0x88}), 900) // IDR
	tc.Observe(packet(13, 3000, true, []byte{0x41, 0x9a}), 400)

	got := c.Snapshot()
	assert.Equal(t, int64(2), got.Frames)
	assert.Equal(t, int64(1), got.Keyframes)
}

func TestConnectionStateMapping(t *testing.T) {
	assert.Equal(t, domain.ConnectionStateNew, connectionState(webrtc.ICEConnectionStateNew))
	assert.Equal(t, domain.ConnectionStateChecking, connectionState(webrtc.ICEConnectionStateChecking))
	assert.Equal(t, domain.ConnectionStateConnected, connectionState(webrtc.ICEConnectionStateConnected))
	assert.Equal(t, domain.ConnectionStateCompleted, connectionState(webrtc.ICEConnectionStateCompleted))
	assert.Equal(t, domain.ConnectionStateDisconnected, connectionState(webrtc.ICEConnectionStateDisconnected))
	assert.Equal(t, domain.ConnectionStateFailed, connectionState(webrtc.ICEConnectionStateFailed))
	assert.Equal(t, domain.ConnectionStateClosed, connectionState(webrtc.ICEConnectionStateClosed))
}

func TestPeerConfiguration(t *testing.T) {
	cfg := Config{ICEServers: []domain.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}}

	plain := peerConfiguration(cfg, domain.Offer{})
	require.Len(t, plain.ICEServers, 1)
	assert.NotEqual(t, webrtc.ICETransportPolicyRelay, plain.ICETransportPolicy)

	relayed := peerConfiguration(cfg, domain.Offer{ICEServers: []domain.ICEServer{
		{URLs: []string{"turn:10.0.0.1:3478"}, Username: "ome", Credential: "secret"},
	}})
	require.Len(t, relayed.ICEServers, 2)
	assert.Equal(t, webrtc.ICETransportPolicyRelay, relayed.ICETransportPolicy)
	assert.Equal(t, "ome", relayed.ICEServers[1].Username)
	assert.Equal(t, "secret", relayed.ICEServers[1].Credential)
	assert.Len(t, cfg.ICEServers, 1, "configured servers are not modified")
}

func TestNewMediaEngine(t *testing.T) {
	_, err := newMediaEngine()
	assert.NoError(t, err)
}
