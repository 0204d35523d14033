package domain

// ICEServer is a STUN/TURN server, possibly supplied by the remote offer.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// ICECandidate is a remote candidate delivered alongside the offer.
type ICECandidate struct {
	Candidate     string
	SDPMid        *string
	SDPMLineIndex *uint16
}

// Offer is the session description the endpoint hands a new viewer.
type Offer struct {
	ID         int64
	PeerID     int64
	SDP        string
	Candidates []ICECandidate
	ICEServers []ICEServer
}

// Answer is the viewer's reply to an Offer.
type Answer struct {
	OfferID int64
	PeerID  int64
	SDP     string
}

// MediaKind distinguishes audio from video tracks.
type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
)

// StreamInfo describes a remote track when it attaches.
type StreamInfo struct {
	Kind     MediaKind
	MimeType string
}
