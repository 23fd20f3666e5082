package ring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewValidation(t *testing.T) {
	_, err := New(0, 2048, nil)
	assert.Equal(t, ErrBadSize, err)

	_, err = New(1000, 0, nil)
	assert.Equal(t, ErrBadSize, err)

	r, err := New(4, 64, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Capacity())
}

func TestRoundTrip(t *testing.T) {
	r, err := New(4, 64, nil)
	require.NoError(t, err)

	require.True(t, r.Append([]byte("hello")))
	require.True(t, r.Commit())

	b, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), b)
	assert.Equal(t, int64(1), r.Processed())
	assert.Equal(t, int64(0), r.Overruns())
}

func TestAppendBounds(t *testing.T) {
	r, err := New(4, 8, nil)
	require.NoError(t, err)

	require.True(t, r.Append([]byte("12345")))
	// 5 + 4 exceeds the slot capacity, the slot must be left untouched
	require.False(t, r.Append([]byte("6789")))
	assert.Equal(t, []byte("12345"), r.Head())

	require.True(t, r.Append([]byte("678")))
	assert.Equal(t, []byte("12345678"), r.Head())

	r.ResetHead()
	assert.Len(t, r.Head(), 0)
}

func TestBoundaryCounts(t *testing.T) {
	r, err := New(4, 8, nil)
	require.NoError(t, err)

	// head=0, tail=3: nothing committed yet; the tail slot is the
	// consumer's scratch and the head slot is reserved for the producer,
	// so 2 of the 4 slots are committable
	assert.Equal(t, 0, r.InUse())
	assert.Equal(t, 2, r.Free())

	require.True(t, r.Commit())
	assert.Equal(t, 1, r.InUse())
	assert.Equal(t, 1, r.Free())

	require.True(t, r.Commit())
	assert.Equal(t, 2, r.InUse())
	assert.Equal(t, 0, r.Free())

	// full: commit drops, indices hold still
	require.False(t, r.Commit())
	assert.Equal(t, 2, r.InUse())
	assert.Equal(t, int64(1), r.Overruns())
}

func TestOverrunDropsNeverBlocks(t *testing.T) {
	r, err := New(2, 8, nil)
	require.NoError(t, err)

	// N=2 leaves no committable slot at all; every commit is an overrun
	for i := 0; i < 5; i++ {
		require.True(t, r.Append([]byte("A")))
		r.Commit()
	}
	assert.Equal(t, int64(5), r.Overruns())
	assert.LessOrEqual(t, r.InUse(), 2)
	assert.GreaterOrEqual(t, r.Overruns(), int64(3))
}

func TestProducedEqualsProcessedPlusOverruns(t *testing.T) {
	r, err := New(4, 8, nil)
	require.NoError(t, err)

	const produced = 10
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, ok := r.Pop(); !ok {
				return
			}
		}
	}()

	for i := 0; i < produced; i++ {
		r.Append([]byte{byte(i)})
		r.Commit()
	}

	// drain, then stop the consumer
	require.Eventually(t, func() bool {
		return r.Processed()+r.Overruns() == int64(produced)
	}, time.Second, time.Millisecond)
	r.Close()
	<-done
}

func TestPopBlocksUntilCommit(t *testing.T) {
	r, err := New(4, 8, nil)
	require.NoError(t, err)

	got := make(chan []byte)
	go func() {
		b, ok := r.Pop()
		require.True(t, ok)
		cp := make([]byte, len(b))
		copy(cp, b)
		got <- cp
	}()

	// let the consumer reach the wait
	require.Eventually(t, func() bool {
		return r.QueueBlocks() > 0
	}, time.Second, time.Millisecond)

	r.Append([]byte("wake"))
	r.Commit()

	select {
	case b := <-got:
		assert.Equal(t, []byte("wake"), b)
	case <-time.After(time.Second):
		t.Fatal("consumer never woke")
	}
}

func TestCloseWakesConsumer(t *testing.T) {
	r, err := New(4, 8, nil)
	require.NoError(t, err)

	done := make(chan bool)
	go func() {
		_, ok := r.Pop()
		done <- ok
	}()

	require.Eventually(t, func() bool {
		return r.QueueBlocks() > 0
	}, time.Second, time.Millisecond)
	r.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer never woke on close")
	}
}

func TestDepthGauge(t *testing.T) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "test", Name: "depth"})
	r, err := New(4, 8, g)
	require.NoError(t, err)

	r.Append([]byte("x"))
	r.Commit()
	assert.Equal(t, 1.0, gaugeValue(t, g))

	_, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, 0.0, gaugeValue(t, g))
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}
