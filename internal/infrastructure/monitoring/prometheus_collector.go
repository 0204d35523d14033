package monitoring

import (
	"context"

	"rtctester/internal/core/domain"
	"rtctester/internal/core/ports"
	"rtctester/internal/core/stats"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports each aggregate report as gauges.
type PrometheusCollector struct {
	clients        prometheus.Gauge
	connected      prometheus.Gauge
	runningSeconds prometheus.Gauge
	reportsTotal   prometheus.Counter
	finished       prometheus.Gauge

	connectionStates *prometheus.GaugeVec

	// Fleet ranges, labelled stat=avg|min|max
	videoDelay *prometheus.GaugeVec
	audioDelay *prometheus.GaugeVec
	gop        *prometheus.GaugeVec
	fps        *prometheus.GaugeVec
	bps        *prometheus.GaugeVec

	bytesTotal      prometheus.Gauge
	packetsTotal    prometheus.Gauge
	packetLossTotal prometheus.Gauge
	framesTotal     prometheus.Gauge
	keyframesTotal  prometheus.Gauge
}

// NewPrometheusCollector registers the tester's metrics with reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	f := promauto.With(reg)
	rangeVec := func(name, help string) *prometheus.GaugeVec {
		return f.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"stat"})
	}

	return &PrometheusCollector{
		clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtctester_clients",
			Help: "Number of simulated clients in the fleet",
		}),
		connected: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtctester_clients_connected",
			Help: "Number of clients whose ICE state is connected",
		}),
		runningSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtctester_running_seconds",
			Help: "Time since the test started",
		}),
		reportsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "rtctester_reports_total",
			Help: "Number of aggregate reports produced",
		}),
		finished: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtctester_finished",
			Help: "1 once the final report has been produced",
		}),

		connectionStates: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rtctester_connection_state_clients",
			Help: "Number of clients per ICE connection state",
		}, []string{"state"}),

		videoDelay: rangeVec("rtctester_video_delay_ms", "Video delay of connected clients in milliseconds"),
		audioDelay: rangeVec("rtctester_audio_delay_ms", "Audio delay of connected clients in milliseconds"),
		gop:        rangeVec("rtctester_gop_frames", "Frames per keyframe of connected clients"),
		fps:        rangeVec("rtctester_fps", "Average frame rate of connected clients"),
		bps:        rangeVec("rtctester_bps", "Average bit rate of connected clients in bits per second"),

		bytesTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtctester_connected_bytes",
			Help: "Bytes received by connected clients",
		}),
		packetsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtctester_connected_packets",
			Help: "RTP packets received by connected clients",
		}),
		packetLossTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtctester_connected_packet_loss",
			Help: "RTP packets lost by connected clients",
		}),
		framesTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtctester_connected_video_frames",
			Help: "Video frames received by connected clients",
		}),
		keyframesTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtctester_connected_video_keyframes",
			Help: "Video keyframes received by connected clients",
		}),
	}
}

var _ ports.ReportObserver = (*PrometheusCollector)(nil)

// ObserveReport replaces every gauge with the values in r. Ranges are
// removed while no client is connected.
func (p *PrometheusCollector) ObserveReport(_ context.Context, r stats.AggregateReport) {
	p.reportsTotal.Inc()
	p.clients.Set(float64(r.Clients))
	p.connected.Set(float64(r.Connected))
	p.runningSeconds.Set(r.RunningTime.Seconds())
	if r.Final {
		p.finished.Set(1)
	}

	for _, st := range domain.ConnectionStates {
		p.connectionStates.WithLabelValues(st.String()).Set(float64(r.States[st]))
	}

	p.bytesTotal.Set(float64(r.TotalBytes))
	p.packetsTotal.Set(float64(r.TotalPackets))
	p.packetLossTotal.Set(float64(r.TotalPacketLoss))
	p.framesTotal.Set(float64(r.TotalFrames))
	p.keyframesTotal.Set(float64(r.TotalKeyframes))

	setRange(p.videoDelay, r.VideoDelay)
	setRange(p.audioDelay, r.AudioDelay)
	setRange(p.fps, r.FPS)
	setRange(p.bps, r.BPS)
	setRange(p.gop, r.GOP)
	if gop, ok := r.AvgGOP(); ok {
		p.gop.WithLabelValues("avg").Set(gop)
	} else {
		p.gop.DeleteLabelValues("avg")
	}
}

func setRange(vec *prometheus.GaugeVec, s stats.Summary) {
	avg, ok := s.Avg()
	if !ok {
		vec.Reset()
		return
	}
	vec.WithLabelValues("avg").Set(avg)
	vec.WithLabelValues("min").Set(s.Min)
	vec.WithLabelValues("max").Set(s.Max)
}
