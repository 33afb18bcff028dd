// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the import pipeline.
//
// When defining new operations or metrics, these are helpful values to
// track:
//  - things coming into or going out of the system: lines read, packets
//    emitted, bytes written.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsEmitted counts packets successfully handed to a sink, labeled
	// by the mode that produced them ("hexdump" or "regex").
	//
	// Provides metrics:
	//   text2pcap_packets_emitted_total
	PacketsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text2pcap_packets_emitted_total",
			Help: "The total number of packets synthesized and written to a sink.",
		}, []string{"mode"})

	// BytesEmitted counts payload bytes (not including synthesized
	// headers) written across all packets.
	//
	// Provides metrics:
	//   text2pcap_bytes_emitted_total
	BytesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text2pcap_bytes_emitted_total",
			Help: "The total number of payload bytes written across all packets.",
		}, []string{"mode"})

	// DecodeErrors counts byte-column decode failures (bad hex/octal/
	// binary/base64 digits) encountered while reconstructing packets.
	//
	// Provides metrics:
	//   text2pcap_decode_errors_total
	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text2pcap_decode_errors_total",
			Help: "The total number of byte-column decode errors encountered.",
		}, []string{"mode"})

	// SinkErrors counts records a Sink refused to write
	// (header.ErrUnwritableRecData), labeled by sink type.
	//
	// Provides metrics:
	//   text2pcap_sink_errors_total
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text2pcap_sink_errors_total",
			Help: "The total number of records a sink could not write.",
		}, []string{"sink"})

	// PacketSizeHistogram tracks the distribution of emitted frame sizes,
	// headers included.
	PacketSizeHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "text2pcap_packet_size_bytes_histogram",
			Help: "Distribution of emitted frame sizes, in bytes.",
			Buckets: []float64{
				60, 64, 128, 256, 512, 1024, 1500, 4096, 9000, 65535, 262144,
			},
		},
	)

	// RunDuration tracks how long a complete import run takes, labeled by
	// mode.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "text2pcap_run_duration_seconds_histogram",
			Help:    "Distribution of complete import run durations, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 20),
		}, []string{"mode"})
)

func init() {
	log.Println("Prometheus metrics in text2pcap.metrics are registered.")
}
