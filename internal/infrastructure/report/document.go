package report

import (
	"time"

	"rtctester/internal/core/domain"
	"rtctester/internal/core/stats"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Range is a min/avg/max triple; nil fields are undefined.
type Range struct {
	Avg *float64 `json:"avg"`
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// Document is the machine-readable form of an aggregate report, published to
// sinks and served by the status endpoint.
type Document struct {
	RunID          string         `json:"run_id,omitempty"`
	GeneratedAt    time.Time      `json:"generated_at"`
	RunningSeconds float64        `json:"running_seconds"`
	Clients        int            `json:"clients"`
	Connected      int            `json:"connected"`
	States         map[string]int `json:"states"`
	Final          bool           `json:"final,omitempty"`

	VideoDelayMs *Range `json:"video_delay_ms,omitempty"`
	AudioDelayMs *Range `json:"audio_delay_ms,omitempty"`
	GOP          *Range `json:"gop,omitempty"`
	FPS          *Range `json:"fps,omitempty"`
	BPS          *Range `json:"bps,omitempty"`

	TotalBytes      int64 `json:"total_bytes"`
	TotalPackets    int64 `json:"total_packets"`
	TotalPacketLoss int64 `json:"total_packet_loss"`

	// Per connected client.
	AvgBytes      *float64 `json:"avg_bytes,omitempty"`
	AvgPackets    *float64 `json:"avg_packets,omitempty"`
	AvgPacketLoss *float64 `json:"avg_packet_loss,omitempty"`
}

// NewDocument converts r. Derived ranges are left out when no client is
// connected.
func NewDocument(runID string, r stats.AggregateReport) Document {
	doc := Document{
		RunID:           runID,
		GeneratedAt:     r.GeneratedAt,
		RunningSeconds:  r.RunningTime.Seconds(),
		Clients:         r.Clients,
		Connected:       r.Connected,
		Final:           r.Final,
		States:          make(map[string]int, len(r.States)),
		TotalBytes:      r.TotalBytes,
		TotalPackets:    r.TotalPackets,
		TotalPacketLoss: r.TotalPacketLoss,
	}
	for _, st := range domain.ConnectionStates {
		doc.States[st.String()] = r.States[st]
	}
	if !r.HasConnected() {
		return doc
	}

	doc.AvgBytes = perConnected(r, r.TotalBytes)
	doc.AvgPackets = perConnected(r, r.TotalPackets)
	doc.AvgPacketLoss = perConnected(r, r.TotalPacketLoss)

	doc.VideoDelayMs = rangeOf(r.VideoDelay)
	doc.AudioDelayMs = rangeOf(r.AudioDelay)
	doc.FPS = rangeOf(r.FPS)
	doc.BPS = rangeOf(r.BPS)
	doc.GOP = rangeOf(r.GOP)
	// The fleet GOP average is a ratio of totals, not a mean of per-client values.
	if gop, ok := r.AvgGOP(); ok {
		doc.GOP.Avg = &gop
	} else {
		doc.GOP.Avg = nil
	}
	return doc
}

// Marshal encodes the document as JSON.
func (d Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

func rangeOf(s stats.Summary) *Range {
	rg := &Range{}
	if avg, ok := s.Avg(); ok {
		mn, mx := s.Min, s.Max
		rg.Avg, rg.Min, rg.Max = &avg, &mn, &mx
	}
	return rg
}

func perConnected(r stats.AggregateReport, total int64) *float64 {
	avg, ok := r.PerConnected(total)
	if !ok {
		return nil
	}
	return &avg
}
