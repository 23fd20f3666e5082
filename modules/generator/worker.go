package generator

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/google/uuid"
	"github.com/grafana/dskit/services"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/infrawatch/sg-bridge/pkg/amqputil"
	"github.com/infrawatch/sg-bridge/pkg/gen"
)

// Stats aggregates counters across all sender workers; the reporting loop
// reads them racily, each worker owns its increments.
type Stats struct {
	AMQPSent     atomic.Int64
	RecordsSent  atomic.Int64
	Acknowledged atomic.Int64
	TotalBursts  atomic.Int64
	BurstCredit  atomic.Int64
}

// amqpSender is the slice of *amqp.Sender the workers use; tests swap in a
// fake peer.
type amqpSender interface {
	Send(ctx context.Context, msg *amqp.Message, opts *amqp.SendOptions) error
	Close(ctx context.Context) error
}

// worker owns one connection, session and sender link and emits synthetic
// telemetry in credit-driven bursts.
type worker struct {
	services.Service

	cfg    Config
	id     int
	logger *zap.Logger
	stats  *Stats
	tmpl   *gen.Templates

	conn    *amqp.Conn
	session *amqp.Session
	link    amqpSender
}

func newWorker(cfg Config, id int, stats *Stats, logger *zap.Logger) *worker {
	w := &worker{
		cfg:    cfg,
		id:     id,
		logger: logger.With(zap.Int("worker", id)),
		stats:  stats,
		tmpl:   gen.New(cfg.mode, cfg.RecordsPerMessage, cfg.Hosts, cfg.MetricsPerHost),
	}
	w.Service = services.NewBasicService(w.starting, w.running, w.stopping)
	return w
}

func (w *worker) starting(ctx context.Context) error {
	addr := "amqp://" + net.JoinHostPort(w.cfg.Host, w.cfg.Port)

	var err error
	w.conn, err = amqp.Dial(ctx, addr, &amqp.ConnOptions{
		ContainerID: fmt.Sprintf("%s-%d", w.cfg.ContainerID, w.id),
		SASLType:    amqp.SASLTypeAnonymous(),
	})
	if err != nil {
		return fmt.Errorf("failed to open amqp connection: %w", err)
	}

	w.session, err = w.conn.NewSession(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to open amqp session: %w", err)
	}

	settleMode := amqp.SenderSettleModeMixed
	if w.cfg.Presettled {
		settleMode = amqp.SenderSettleModeSettled
	}
	w.link, err = w.session.NewSender(ctx, w.cfg.Address, &amqp.SenderOptions{
		Name:                        "sa-gen-" + uuid.NewString()[:16],
		SettlementMode:              settleMode.Ptr(),
		RequestedReceiverSettleMode: amqp.ReceiverSettleModeFirst.Ptr(),
	})
	if err != nil {
		return fmt.Errorf("failed to attach sender link: %w", err)
	}

	w.logger.Info("sender link attached", zap.String("address", w.cfg.Address))
	return nil
}

func (w *worker) running(ctx context.Context) error {
	var sendOpts *amqp.SendOptions
	if w.cfg.Presettled {
		sendOpts = &amqp.SendOptions{Settled: true}
	}

	for {
		if w.done() {
			w.logger.Info("record count reached", zap.Int64("records", w.stats.RecordsSent.Load()))
			return nil
		}

		// one timestamp per burst, like one clock_gettime per flow event
		now := w.tmpl.Timestamp(time.Now())

		w.stats.TotalBursts.Inc()
		metricBursts.Inc()

		burst := 0
		for !w.done() {
			if err := w.sendOne(ctx, now, sendOpts); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return amqputil.DescribeError(err)
			}
			burst++
			if w.cfg.BurstSize > 0 && burst >= w.cfg.BurstSize {
				break
			}
		}
		w.stats.BurstCredit.Add(int64(burst))
		metricBurstCredit.Add(float64(burst))

		if w.cfg.SleepUsec > 0 {
			select {
			case <-time.After(time.Duration(w.cfg.SleepUsec) * time.Microsecond):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (w *worker) sendOne(ctx context.Context, now string, opts *amqp.SendOptions) error {
	payload, ok := w.tmpl.Render(now)
	if !ok {
		// refuse to truncate; an empty body still moves the burst along
		metricRenderFailures.Inc()
		payload = nil
	}

	msg := &amqp.Message{
		ApplicationProperties: map[string]any{
			"SendTime": time.Now().UnixMilli(),
			"AMQPSent": w.stats.AMQPSent.Load(),
		},
		Data: [][]byte{payload},
	}

	// in mixed mode Send blocks on credit and returns with the peer's
	// disposition; that wait is the credit gate
	if err := w.link.Send(ctx, msg, opts); err != nil {
		return err
	}

	w.stats.AMQPSent.Inc()
	metricAMQPSent.Inc()
	records := int64(w.cfg.RecordsPerMessage)
	w.stats.RecordsSent.Add(records)
	metricRecordsSent.Add(float64(records))

	if !w.cfg.Presettled {
		w.stats.Acknowledged.Add(records)
		metricAcknowledged.Add(float64(records))
	}

	return nil
}

func (w *worker) done() bool {
	return w.cfg.MessageCount > 0 && w.stats.RecordsSent.Load() >= int64(w.cfg.MessageCount)
}

func (w *worker) stopping(_ error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if w.link != nil {
		_ = w.link.Close(ctx)
	}
	if w.session != nil {
		_ = w.session.Close(ctx)
	}
	if w.conn != nil {
		_ = w.conn.Close()
	}

	w.logger.Info("sender stopped")
	return nil
}
