package bridge

import "github.com/prometheus/client_golang/prometheus"

const namespace = "sg_bridge"

var (
	metricAMQPReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amqp_received_total",
		Help:      "Complete AMQP deliveries accepted from the peer.",
	})
	metricAMQPPartial = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amqp_partial_total",
		Help:      "Extra body sections reassembled into a ring slot.",
	})
	metricAMQPOversize = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amqp_oversize_total",
		Help:      "Deliveries rejected because they exceed the ring slot size.",
	})
	metricSockSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sock_sent_total",
		Help:      "Datagrams delivered downstream.",
	})
	metricSockWouldBlock = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sock_would_block_total",
		Help:      "Datagrams dropped because the downstream socket would block.",
	})
	metricDecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amqp_decode_errors_total",
		Help:      "Ring slots that failed to decode as AMQP messages.",
	})
	metricRingDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ring_depth",
		Help:      "Committed ring slots awaiting the egress worker.",
	})
	metricRingMaxDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ring_max_depth",
		Help:      "High watermark of committed ring slots.",
	})
	metricRingOverruns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ring_overruns",
		Help:      "Commits dropped against a full ring.",
	})
	metricRingQueueBlocks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ring_queue_blocks",
		Help:      "Times the egress worker waited on an empty ring.",
	})
)

func init() {
	prometheus.MustRegister(metricAMQPReceived)
	prometheus.MustRegister(metricAMQPPartial)
	prometheus.MustRegister(metricAMQPOversize)
	prometheus.MustRegister(metricSockSent)
	prometheus.MustRegister(metricSockWouldBlock)
	prometheus.MustRegister(metricDecodeErrors)
	prometheus.MustRegister(metricRingDepth)
	prometheus.MustRegister(metricRingMaxDepth)
	prometheus.MustRegister(metricRingOverruns)
	prometheus.MustRegister(metricRingQueueBlocks)
}
