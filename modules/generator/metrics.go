package generator

import "github.com/prometheus/client_golang/prometheus"

const namespace = "sg_gen"

var (
	metricAMQPSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amqp_sent_total",
		Help:      "AMQP messages sent.",
	})
	metricRecordsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_sent_total",
		Help:      "Telemetry records sent across all messages.",
	})
	metricAcknowledged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "acknowledged_total",
		Help:      "Telemetry records acknowledged by the peer.",
	})
	metricBursts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bursts_total",
		Help:      "Send bursts started.",
	})
	metricBurstCredit = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "burst_credit_total",
		Help:      "Messages sent within bursts.",
	})
	metricRenderFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "render_failures_total",
		Help:      "Payload renders that exceeded the scratch buffer.",
	})
)

func init() {
	prometheus.MustRegister(metricAMQPSent)
	prometheus.MustRegister(metricRecordsSent)
	prometheus.MustRegister(metricAcknowledged)
	prometheus.MustRegister(metricBursts)
	prometheus.MustRegister(metricBurstCredit)
	prometheus.MustRegister(metricRenderFailures)
}
