package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TCPConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_tcp_connections_total",
		Help: "TCP connections accepted",
	})
	LoginsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_logins_accepted_total",
		Help: "IMEI logins accepted",
	})
	LoginsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_logins_rejected_total",
		Help: "IMEI logins rejected (unknown or unapproved)",
	})
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_frames_decoded_total",
		Help: "AVL frames decoded",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_decode_errors_total",
		Help: "AVL frames dropped on decode error",
	})
	CRCMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_crc_mismatch_total",
		Help: "Frames whose trailing CRC did not match the payload",
	})
	RecordsAcked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_records_acked_total",
		Help: "AVL records acknowledged to devices",
	})
	RecordsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_records_persisted_total",
		Help: "Records written to the store (duplicates count as persisted)",
	})
	StoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_store_errors_total",
		Help: "Store write failures",
	})
	DecodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "avl_decode_latency_seconds",
		Help:    "Per-frame decode latency",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveDecodeLatency(start time.Time) {
	DecodeLatency.Observe(time.Since(start).Seconds())
}

// StartMetricsServer serves /metrics and /healthz on its own port.
func StartMetricsServer(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	})
	_ = http.ListenAndServe(":"+port, mux)
}
