package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"

	"github.com/infrawatch/sg-bridge/pkg/ring"
)

// Bridge owns the ring and both workers and coordinates their shutdown:
// whichever side stops first takes the other down with it.
type Bridge struct {
	cfg    Config
	logger kitlog.Logger

	rb       *ring.Ring
	receiver *Receiver
	egress   *Egress
}

func New(cfg Config, logger kitlog.Logger) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rb, err := ring.New(cfg.RingCount, cfg.RingSize, metricRingDepth)
	if err != nil {
		return nil, err
	}

	return &Bridge{
		cfg:      cfg,
		logger:   logger,
		rb:       rb,
		receiver: newReceiver(cfg, rb, logger),
		egress:   newEgress(cfg, rb, logger),
	}, nil
}

// Run blocks until the bridge stops. A nil return means a clean,
// externally-requested shutdown; anything else is a worker-initiated failure.
func (b *Bridge) Run(ctx context.Context) error {
	sm, err := services.NewManager(b.receiver, b.egress)
	if err != nil {
		return fmt.Errorf("failed to create service manager: %w", err)
	}

	watcher := services.NewFailureWatcher()
	watcher.WatchManager(sm)

	if err := services.StartManagerAndAwaitHealthy(ctx, sm); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	level.Info(b.logger).Log("msg", "bridge running", "ring_count", b.cfg.RingCount, "ring_size", b.cfg.RingSize)

	sample := time.NewTicker(time.Second)
	defer sample.Stop()

	var (
		failure      error
		sinceReport  time.Duration
		lastReceived int64
		lastOverruns int64
		lastSent     int64
	)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case err := <-watcher.Chan():
			failure = err
			break loop

		case <-sample.C:
			overruns := b.rb.Overruns()
			metricRingOverruns.Set(float64(overruns))
			metricRingQueueBlocks.Set(float64(b.rb.QueueBlocks()))

			if b.cfg.StatPeriod > 0 {
				sinceReport += time.Second
				if sinceReport >= b.cfg.StatPeriod {
					sinceReport = 0
					received := b.receiver.Received()
					sent := b.egress.Sent()
					level.Info(b.logger).Log(
						"msg", "stats",
						"in", humanize.Comma(received), "in_delta", received-lastReceived,
						"overrun", humanize.Comma(overruns), "overrun_delta", overruns-lastOverruns,
						"out", humanize.Comma(sent), "out_delta", sent-lastSent,
						"depth", b.rb.InUse(), "max_depth", b.receiver.MaxQueueDepth(),
					)
					lastReceived, lastOverruns, lastSent = received, overruns, sent
				}
			}
		}
	}

	// asymmetric teardown: wake the blocking consumer first, then stop both
	b.rb.Close()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sm.StopAsync()
	if err := sm.AwaitStopped(stopCtx); err != nil {
		level.Warn(b.logger).Log("msg", "workers did not stop cleanly", "err", err)
	}

	if failure != nil && !errors.Is(failure, context.Canceled) {
		return failure
	}
	return nil
}

// Ring is exposed for tests.
func (b *Bridge) Ring() *ring.Ring { return b.rb }
