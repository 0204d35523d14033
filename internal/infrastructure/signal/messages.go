package signal

import (
	"rtctester/internal/core/domain"
	apperrors "rtctester/pkg/errors"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	CommandRequestOffer = "request_offer"
	CommandOffer        = "offer"
	CommandAnswer       = "answer"
)

// Message is the envelope every signaling frame uses.
type Message struct {
	Command    string              `json:"command"`
	ID         *int64              `json:"id,omitempty"`
	PeerID     *int64              `json:"peer_id,omitempty"`
	SDP        *SessionDescription `json:"sdp,omitempty"`
	Candidates []Candidate         `json:"candidates,omitempty"`
	ICEServers []ICEServer         `json:"ice_servers,omitempty"`
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type ICEServer struct {
	URLs       []string `json:"urls"`
	UserName   string   `json:"user_name,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// ParseOffer decodes an offer frame.
func ParseOffer(data []byte) (domain.Offer, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Offer{}, apperrors.NewInvalidOfferError("malformed json: " + err.Error())
	}
	return msg.Offer()
}

// Offer validates msg and converts it. The id is required, peer_id is not.
func (m Message) Offer() (domain.Offer, error) {
	if m.Command != CommandOffer {
		return domain.Offer{}, apperrors.NewInvalidOfferError("unexpected command " + m.Command)
	}
	if m.ID == nil {
		return domain.Offer{}, apperrors.NewInvalidOfferError("offer has no id")
	}
	if m.SDP == nil || m.SDP.SDP == "" {
		return domain.Offer{}, apperrors.NewInvalidOfferError("offer has no sdp")
	}
	if m.SDP.Type != "" && m.SDP.Type != CommandOffer {
		return domain.Offer{}, apperrors.NewInvalidOfferError("sdp type is " + m.SDP.Type)
	}

	offer := domain.Offer{ID: *m.ID, SDP: m.SDP.SDP}
	if m.PeerID != nil {
		offer.PeerID = *m.PeerID
	}
	for _, c := range m.Candidates {
		offer.Candidates = append(offer.Candidates, domain.ICECandidate{
			Candidate:     c.Candidate,
			SDPMid:        c.SDPMid,
			SDPMLineIndex: c.SDPMLineIndex,
		})
	}
	for _, s := range m.ICEServers {
		offer.ICEServers = append(offer.ICEServers, domain.ICEServer{
			URLs:       s.URLs,
			Username:   s.UserName,
			Credential: s.Credential,
		})
	}
	return offer, nil
}

// AnswerMessage builds the frame that carries a.
func AnswerMessage(a domain.Answer) Message {
	id, peerID := a.OfferID, a.PeerID
	return Message{
		Command: CommandAnswer,
		ID:      &id,
		PeerID:  &peerID,
		SDP:     &SessionDescription{Type: CommandAnswer, SDP: a.SDP},
	}
}
