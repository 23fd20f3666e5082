package gen

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

// Payload scratch capacity. Renders that would exceed it fail instead of
// truncating.
const scratchSize = 4096

// Mode selects the synthetic record shape.
type Mode int

const (
	// ModeMetric renders a collectd-style JSON array of metric records.
	ModeMetric Mode = iota
	// ModeLog renders rsyslog-style JSON log records.
	ModeLog
	// ModeEvent renders a Ceilometer-style nested event envelope.
	ModeEvent
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "metric":
		return ModeMetric, nil
	case "log":
		return ModeLog, nil
	case "event":
		return ModeEvent, nil
	}
	return 0, fmt.Errorf("unknown payload mode %q", s)
}

func (m Mode) String() string {
	switch m {
	case ModeMetric:
		return "metric"
	case ModeLog:
		return "log"
	case ModeEvent:
		return "event"
	}
	return "unknown"
}

const (
	metricOpen  = `{"values": [`
	metricTime  = `], "dstypes": ["derive"], "dsnames": ["samples"], "time": `
	metricHost  = `, "interval": 1,"host": "`
	metricName  = `", "plugin": "`
	metricClose = `", "plugin_instance": "pluginInst0","type": "type0","type_instance": "typInst0"}`

	logOpen  = `{"@timestamp":"`
	logHost  = `", "host":"`
	logClose = `", "severity":"5", "facility":"user", "tag":"tag1", "source":"some-source", "message":"a log message from generator'", "file":"", "cloud": "cloud1", "region": "some-region"}`

	eventOpen   = `{"request": {"oslo.version": "2.0", "oslo.message": "{\"message_id\": \"111c1c6e-21b8-4113-1a21-d10121214113\", \"publisher_id\": \"telemetry.publisher.somethingk.cloud.internal\", \"event_type\": \"metering\", \"priority\": \"SAMPLE\", \"payload\": [`
	eventSample = `{\"source\": \"openstack\", \"counter_name\": \"some_counter_name\", \"counter_type\": \"delta\", \"counter_unit\": \"user\", \"counter_volume\": 1, \"user_id\": \"11118c1fa1d019019b118c1901e41151\", \"project_id\": \"None\", \"resource_id\": \"161b1cd1a6d1491e9b11811918e41151\", \"timestamp\": \"`
	eventMeta   = `\", \"resource_metadata\": {\"host\": \"compute-0.redhat.local\", \"flavor_id\": \"71cd0af1-afd3-4ee4-b918-cec05bf89578\", \"flavor_name\": \"m1.tiny\", \"display_name\": \"new-instance\", \"image_ref\": \"45333e02-643d-4f4f-a817-065060753983\", \"launched_at\": \"2020-09-14T16:12:49.839122\", \"created_at\": \"2020-09-14 16:12:39+00:00\"}, \"message_id\": \"22a22d22-0292-12e2-8232-c2a2e02d52a5\", \"monotonic_time\": \"None\", \"message_signature\": \"6322324324323b2d32832932132432c32732e32e323d2f3732d32e3232c32323\"}`
	eventTime   = `], \"timestamp\": \"`
	eventClose  = `\"}"}, "context": {}}`
)

// HostMetric is one rotating host/metric pair with its sample counter.
type HostMetric struct {
	Hostname string
	Metric   string
	Count    int64
}

// Templates renders synthetic telemetry payloads into a reusable scratch
// buffer. Not safe for concurrent use; each sender owns its own instance.
type Templates struct {
	mode    Mode
	records int

	list []HostMetric
	curr int

	buf cursor
}

// New builds a template set rotating over a shuffled list of
// hosts × metricsPerHost entries. records is the number of telemetry records
// rendered per message.
func New(mode Mode, records, hosts, metricsPerHost int) *Templates {
	if records < 1 {
		records = 1
	}
	if hosts < 1 {
		hosts = 1
	}
	if metricsPerHost < 1 {
		metricsPerHost = 1
	}

	list := make([]HostMetric, 0, hosts*metricsPerHost)
	for h := 0; h < hosts; h++ {
		for m := 0; m < metricsPerHost; m++ {
			list = append(list, HostMetric{
				Hostname: fmt.Sprintf("hostname%03d", h),
				Metric:   fmt.Sprintf("metrics%03d", m),
			})
		}
	}
	rand.Shuffle(len(list), func(i, j int) {
		list[i], list[j] = list[j], list[i]
	})

	return &Templates{
		mode:    mode,
		records: records,
		list:    list,
		buf:     cursor{buf: make([]byte, 0, scratchSize)},
	}
}

// Timestamp formats now the way the active template embeds it: ISO-8601 with
// a fixed offset for logs, seconds.nanoseconds otherwise.
func (t *Templates) Timestamp(now time.Time) string {
	if t.mode == ModeLog {
		return now.Format("2006-01-02T15:04:05") + "+02:00"
	}
	secs := float64(now.Unix()) + float64(now.Nanosecond())/1e9
	return strconv.FormatFloat(secs, 'f', 6, 64)
}

// Render writes the next message payload for the given timestamp. The
// returned slice is valid until the next Render. ok is false when the
// rendered payload would not fit the scratch buffer; nothing useful is
// returned in that case.
func (t *Templates) Render(timestamp string) (payload []byte, ok bool) {
	t.buf.reset()

	switch t.mode {
	case ModeLog:
		t.renderLogs(timestamp)
	case ModeEvent:
		t.renderEvents(timestamp)
	default:
		t.renderMetrics(timestamp)
	}

	if !t.buf.ok() {
		return nil, false
	}
	return t.buf.bytes(), true
}

func (t *Templates) renderMetrics(timestamp string) {
	t.buf.writeString("[")
	for i := 0; i < t.records; {
		entry := &t.list[t.curr]
		t.buf.writeString(metricOpen)
		t.buf.writeInt(entry.Count)
		entry.Count++
		t.buf.writeString(metricTime)
		t.buf.writeString(timestamp)
		t.buf.writeString(metricHost)
		t.buf.writeString(entry.Hostname)
		t.buf.writeString(metricName)
		t.buf.writeString(entry.Metric)
		t.buf.writeString(metricClose)

		if i++; i < t.records {
			t.buf.writeString(",")
		}
		t.advance()
	}
	t.buf.writeString("]")
}

func (t *Templates) renderLogs(timestamp string) {
	for i := 0; i < t.records; i++ {
		t.buf.writeString(logOpen)
		t.buf.writeString(timestamp)
		t.buf.writeString(logHost)
		t.buf.writeString(t.list[t.curr].Hostname)
		t.buf.writeString(logClose)
		t.advance()
	}
}

func (t *Templates) renderEvents(timestamp string) {
	t.buf.writeString(eventOpen)
	for i := 0; i < t.records; {
		t.buf.writeString(eventSample)
		t.buf.writeString(timestamp)
		t.buf.writeString(eventMeta)

		if i++; i < t.records {
			t.buf.writeString(",")
		}
		t.advance()
	}
	t.buf.writeString(eventTime)
	t.buf.writeString(timestamp)
	t.buf.writeString(eventClose)
}

func (t *Templates) advance() {
	t.curr++
	if t.curr >= len(t.list) {
		t.curr = 0
	}
}

// cursor appends into a fixed-capacity buffer and latches a failure once an
// append would exceed it. Failed renders are reported, never truncated.
type cursor struct {
	buf      []byte
	overflow bool
}

func (c *cursor) reset() {
	c.buf = c.buf[:0]
	c.overflow = false
}

func (c *cursor) writeString(s string) {
	if c.overflow || len(c.buf)+len(s) > cap(c.buf) {
		c.overflow = true
		return
	}
	c.buf = append(c.buf, s...)
}

func (c *cursor) writeInt(v int64) {
	var tmp [20]byte
	b := strconv.AppendInt(tmp[:0], v, 10)
	if c.overflow || len(c.buf)+len(b) > cap(c.buf) {
		c.overflow = true
		return
	}
	c.buf = append(c.buf, b...)
}

func (c *cursor) ok() bool { return !c.overflow }

func (c *cursor) bytes() []byte { return c.buf }
