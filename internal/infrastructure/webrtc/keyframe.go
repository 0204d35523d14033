package webrtc

import (
	"strings"

	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
)

// H.264 NAL unit types that matter for keyframe detection.
const (
	naluIDR   = 5
	naluSPS   = 7
	naluStapA = 24
	naluFuA   = 28
)

// keyframeDetector reports whether an RTP payload starts or belongs to a
// keyframe for one codec.
type keyframeDetector func(payload []byte) bool

func detectorFor(mimeType string) keyframeDetector {
	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		return isVP8Keyframe
	case strings.EqualFold(mimeType, webrtc.MimeTypeH264):
		return isH264Keyframe
	default:
		return func([]byte) bool { return false }
	}
}

// isVP8Keyframe checks the first partition of a frame: the payload header's
// inverse key frame bit is clear on keyframes.
func isVP8Keyframe(payload []byte) bool {
	var pkt codecs.VP8Packet
	body, err := pkt.Unmarshal(payload)
	if err != nil || pkt.S != 1 || pkt.PID != 0 || len(body) == 0 {
		return false
	}
	return body[0]&0x01 == 0
}

// isH264Keyframe looks for an IDR slice or a parameter set, single, aggregated
// (STAP-A) or as the first fragment of an FU-A.
func isH264Keyframe(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	switch nalu := payload[0] & 0x1F; nalu {
	case naluIDR, naluSPS:
		return true
	case naluStapA:
		for rest := payload[1:]; len(rest) > 2; {
			size := int(rest[0])<<8 | int(rest[1])
			rest = rest[2:]
			if size == 0 || size > len(rest) {
				return false
			}
			if t := rest[0] & 0x1F; t == naluIDR || t == naluSPS {
				return true
			}
			rest = rest[size:]
		}
		return false
	case naluFuA:
		if len(payload) < 2 {
			return false
		}
		start := payload[1]&0x80 != 0
		return start && payload[1]&0x1F == naluIDR
	default:
		return false
	}
}
