package gen

import (
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	for s, expected := range map[string]Mode{
		"metric": ModeMetric,
		"log":    ModeLog,
		"event":  ModeEvent,
	} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, expected, m)
		assert.Equal(t, s, m.String())
	}

	_, err := ParseMode("thrift")
	assert.Error(t, err)
}

func TestRenderMetricsIsValidJSON(t *testing.T) {
	tmpl := New(ModeMetric, 3, 10, 10)
	ts := tmpl.Timestamp(time.Now())

	payload, ok := tmpl.Render(ts)
	require.True(t, ok)

	var records []map[string]interface{}
	require.NoError(t, jsoniter.Unmarshal(payload, &records))
	require.Len(t, records, 3)

	for _, r := range records {
		assert.Contains(t, r, "values")
		assert.Contains(t, r, "dstypes")
		assert.Equal(t, "pluginInst0", r["plugin_instance"])
		assert.True(t, strings.HasPrefix(r["host"].(string), "hostname"))
		assert.True(t, strings.HasPrefix(r["plugin"].(string), "metrics"))
	}
}

func TestRenderMetricsCountsAdvance(t *testing.T) {
	// a single rotating entry means every render samples the same counter
	tmpl := New(ModeMetric, 1, 1, 1)
	ts := tmpl.Timestamp(time.Now())

	first, ok := tmpl.Render(ts)
	require.True(t, ok)
	assert.Contains(t, string(first), `"values": [0]`)

	second, ok := tmpl.Render(ts)
	require.True(t, ok)
	assert.Contains(t, string(second), `"values": [1]`)
}

func TestRenderLogIsValidJSON(t *testing.T) {
	tmpl := New(ModeLog, 1, 5, 2)
	ts := tmpl.Timestamp(time.Date(2024, 3, 1, 12, 30, 15, 0, time.UTC))
	assert.Equal(t, "2024-03-01T12:30:15+02:00", ts)

	payload, ok := tmpl.Render(ts)
	require.True(t, ok)

	var record map[string]interface{}
	require.NoError(t, jsoniter.Unmarshal(payload, &record))
	assert.Equal(t, ts, record["@timestamp"])
	assert.Equal(t, "5", record["severity"])
	assert.Equal(t, "user", record["facility"])
}

func TestRenderEventIsValidJSON(t *testing.T) {
	tmpl := New(ModeEvent, 2, 3, 3)
	ts := tmpl.Timestamp(time.Now())

	payload, ok := tmpl.Render(ts)
	require.True(t, ok)

	var envelope struct {
		Request struct {
			Version string `json:"oslo.version"`
			Message string `json:"oslo.message"`
		} `json:"request"`
	}
	require.NoError(t, jsoniter.Unmarshal(payload, &envelope))
	assert.Equal(t, "2.0", envelope.Request.Version)

	var inner struct {
		EventType string                   `json:"event_type"`
		Payload   []map[string]interface{} `json:"payload"`
	}
	require.NoError(t, jsoniter.Unmarshal([]byte(envelope.Request.Message), &inner))
	assert.Equal(t, "metering", inner.EventType)
	assert.Len(t, inner.Payload, 2)
}

func TestRenderRefusesOverflow(t *testing.T) {
	// enough event samples to blow well past the scratch capacity
	tmpl := New(ModeEvent, 100, 2, 2)
	payload, ok := tmpl.Render(tmpl.Timestamp(time.Now()))
	assert.False(t, ok)
	assert.Nil(t, payload)
}

func TestTimestampFormats(t *testing.T) {
	at := time.Unix(1578337518, 866800000).UTC()

	metric := New(ModeMetric, 1, 1, 1)
	assert.Equal(t, "1578337518.866800", metric.Timestamp(at))

	logs := New(ModeLog, 1, 1, 1)
	assert.Equal(t, at.Format("2006-01-02T15:04:05")+"+02:00", logs.Timestamp(at))
}

func TestRotationCoversList(t *testing.T) {
	tmpl := New(ModeMetric, 1, 2, 2)
	seen := map[string]bool{}

	for i := 0; i < 10; i++ {
		payload, ok := tmpl.Render("0.0")
		require.True(t, ok)
		var records []map[string]interface{}
		require.NoError(t, jsoniter.Unmarshal(payload, &records))
		seen[records[0]["host"].(string)+"/"+records[0]["plugin"].(string)] = true
	}

	// 10 renders rotate through the whole list, so all 4 pairs show up
	assert.Len(t, seen, 4)
}
