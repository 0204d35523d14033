package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"rtctester/internal/core/domain"
	"rtctester/internal/core/stats"
)

const undefined = "undefined"

const banner = "***************************"

// Printer renders reports as plain text.
type Printer struct {
	w io.Writer
	// Color highlights client names with ANSI escapes.
	Color bool
}

func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, Color: color}
}

// Summary writes the aggregate block printed on every report tick.
func (p *Printer) Summary(r stats.AggregateReport) error {
	_, err := io.WriteString(p.w, FormatSummary(r))
	return err
}

// Detail writes one client's detail block.
func (p *Printer) Detail(snap domain.ClientSnapshot, now time.Time) error {
	_, err := io.WriteString(p.w, FormatClientDetail(snap, now, p.Color))
	return err
}

// Final writes the closing summary and the header of the detail section that
// Detail fills in.
func (p *Printer) Final(r stats.AggregateReport) error {
	var b strings.Builder
	b.WriteString(banner + "\n")
	b.WriteString("Reports\n")
	b.WriteString(banner + "\n")
	b.WriteString(FormatSummary(r))
	b.WriteString("<Details>\n")
	_, err := io.WriteString(p.w, b.String())
	return err
}

// FormatSummary renders the fleet summary. Derived statistics are omitted when
// no client is connected.
func FormatSummary(r stats.AggregateReport) string {
	var b strings.Builder
	b.WriteString("<Summary>\n")
	fmt.Fprintf(&b, "Running time: %d seconds\n", roundSeconds(r.RunningTime))
	fmt.Fprintf(&b, "Number of clients: %d\n", r.Clients)

	states := make([]string, 0, len(domain.ConnectionStates))
	for _, st := range domain.ConnectionStates {
		states = append(states, fmt.Sprintf("%s(%d)", st, r.States[st]))
	}
	fmt.Fprintf(&b, "ICE Connection State: %s\n", strings.Join(states, ", "))

	if !r.HasConnected() {
		b.WriteString("\n")
		return b.String()
	}

	writeTriple(&b, "Video Delay", " ms", r.VideoDelay)
	writeTriple(&b, "Audio Delay", " ms", r.AudioDelay)

	avgGOP := undefined
	if gop, ok := r.AvgGOP(); ok {
		avgGOP = num(gop)
	}
	fmt.Fprintf(&b, "Avg GOP(%s), Max GOP(%s), Min GOP(%s)\n", avgGOP, maxOf(r.GOP), minOf(r.GOP))
	writeTriple(&b, "FPS", "", r.FPS)
	writeTriple(&b, "BPS", " bps", r.BPS)

	avgBytes, _ := r.PerConnected(r.TotalBytes)
	avgPackets, _ := r.PerConnected(r.TotalPackets)
	avgLoss, _ := r.PerConnected(r.TotalPacketLoss)
	fmt.Fprintf(&b, "Total Bytes(%d) Bytes, Avg Bytes(%s) Bytes\n", r.TotalBytes, num(avgBytes))
	fmt.Fprintf(&b, "Total Packets(%d), Avg Packets(%s)\n", r.TotalPackets, num(avgPackets))
	fmt.Fprintf(&b, "Total Packet Losses(%d), Avg Packet Losses(%s)\n", r.TotalPacketLoss, num(avgLoss))
	b.WriteString("\n")
	return b.String()
}

// FormatClientDetail renders one client's counters as of now.
func FormatClientDetail(snap domain.ClientSnapshot, now time.Time, color bool) string {
	s := snap.Stat
	var b strings.Builder
	if color {
		fmt.Fprintf(&b, "\x1b[32m[%s]\x1b[0m\n", snap.Name)
	} else {
		fmt.Fprintf(&b, "[%s]\n", snap.Name)
	}
	fmt.Fprintf(&b, "\trunning_time(%d) connection_state(%s) total_packets(%d) packet_loss(%d)\n",
		roundSeconds(s.RunningTime(now)), s.ConnectionState, s.TotalPackets, s.PacketLoss)
	fmt.Fprintf(&b, "\tlast_video_delay (%s ms) last_audio_delay (%s ms)\n",
		optional(s.VideoDelayMs, s.HasVideoDelay), optional(s.AudioDelayMs, s.HasAudioDelay))
	fmt.Fprintf(&b, "\ttotal_bytes(%d bytes) avg_bps(%s bps) min_bps(%s bps) max_bps(%s bps)\n",
		s.TotalBytes, num(s.AvgBPS), optional(s.MinBPS, s.BPSObserved), optional(s.MaxBPS, s.BPSObserved))
	gop, ok := s.GOP()
	fmt.Fprintf(&b, "\ttotal_video_frames(%d) total_video_keyframes(%d) avg_gop(%s) avg_fps(%s) min_fps(%s) max_fps(%s)\n",
		s.TotalVideoFrames, s.TotalVideoKeyframes, optional(gop, ok), num(s.AvgFPS),
		optional(s.MinFPS, s.FPSObserved), optional(s.MaxFPS, s.FPSObserved))
	b.WriteString("\n")
	return b.String()
}

func writeTriple(b *strings.Builder, label, unit string, s stats.Summary) {
	avg, ok := s.Avg()
	fmt.Fprintf(b, "Avg %s(%s)%s, Max %s(%s)%s, Min %s(%s)%s\n",
		label, optional(avg, ok), unit,
		label, maxOf(s), unit,
		label, minOf(s), unit)
}

func maxOf(s stats.Summary) string { return optional(s.Max, s.Count > 0) }
func minOf(s stats.Summary) string { return optional(s.Min, s.Count > 0) }

func optional(v float64, ok bool) string {
	if !ok {
		return undefined
	}
	return num(v)
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return undefined
	}
	return fmt.Sprintf("%.2f", v)
}

func roundSeconds(d time.Duration) int64 {
	return int64(math.Round(d.Seconds()))
}
