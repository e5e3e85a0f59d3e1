// Package metrics exposes Prometheus counters/gauges for the TX queue,
// DLSM, and KISS layers, plus a small gin HTTP server serving /metrics and
// a /links diagnostic endpoint (SPEC_FULL.md §12).
package metrics

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/la5nta/axlink/ax25"
)

// Registry holds every metric this module exports.
type Registry struct {
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	TXQueueDepth   *prometheus.GaugeVec
	StateTransitions *prometheus.CounterVec
	T1Expiries     *prometheus.CounterVec
	Retries        prometheus.Histogram
	ProtocolErrors *prometheus.CounterVec
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		FramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axlink",
			Name:      "frames_sent_total",
			Help:      "AX.25 frames transmitted, by channel and frame kind.",
		}, []string{"channel", "kind"}),
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axlink",
			Name:      "frames_received_total",
			Help:      "AX.25 frames received, by channel and frame kind.",
		}, []string{"channel", "kind"}),
		TXQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "axlink",
			Name:      "tx_queue_depth",
			Help:      "Frames currently queued for transmission, by channel.",
		}, []string{"channel"}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axlink",
			Name:      "dlsm_state_transitions_total",
			Help:      "DLSM link state transitions, by resulting state.",
		}, []string{"state"}),
		T1Expiries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axlink",
			Name:      "t1_expiries_total",
			Help:      "T1 retransmission timer expiries, by link identity.",
		}, []string{"link"}),
		Retries: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "axlink",
			Name:      "retry_count",
			Help:      "Retry count (RC) observed at successful recovery.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		ProtocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axlink",
			Name:      "protocol_errors_total",
			Help:      "AX.25 protocol errors observed, by error letter.",
		}, []string{"code"}),
	}
}

// KindLabel is the Prometheus label value for a frame kind.
func KindLabel(k ax25.FrameKind) string { return k.String() }

// LinkSnapshot is one row of the /links diagnostic endpoint.
type LinkSnapshot struct {
	Channel     uint8  `json:"channel"`
	Own         string `json:"own"`
	Peer        string `json:"peer"`
	State       string `json:"state"`
	VS          int    `json:"vs"`
	VA          int    `json:"va"`
	VR          int    `json:"vr"`
	Outstanding int    `json:"outstanding"`
}

// LinkLister is implemented by the component that can enumerate current
// links (the cmd/axlinkd wiring layer, which owns the dlsm.LinkSet).
type LinkLister interface {
	Snapshot() []LinkSnapshot
}

// Server serves /metrics (via promhttp) and /links (JSON diagnostics) over
// HTTP using gin, mirroring the DMRHub dashboard's API server shape.
type Server struct {
	engine *gin.Engine
	addr   string
}

// NewServer builds the HTTP server bound to addr.
func NewServer(addr string, reg *prometheus.Registry, links LinkLister) *Server {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	e.GET("/links", func(c *gin.Context) {
		c.JSON(http.StatusOK, links.Snapshot())
	})
	return &Server{engine: e, addr: addr}
}

// Run starts serving and blocks until the server stops or errors.
func (s *Server) Run() error {
	return s.engine.Run(s.addr)
}
