package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grafana/dskit/services"
	"go.uber.org/zap"
)

// Generator runs the configured number of sender workers and reports their
// aggregate progress once a second.
type Generator struct {
	cfg    Config
	logger *zap.Logger

	stats   *Stats
	workers []services.Service
}

func New(cfg Config, logger *zap.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	g := &Generator{
		cfg:    cfg,
		logger: logger,
		stats:  &Stats{},
	}
	for i := 0; i < cfg.Workers; i++ {
		g.workers = append(g.workers, newWorker(cfg, i, g.stats, logger))
	}

	return g, nil
}

// Stats exposes the aggregate counters.
func (g *Generator) Stats() *Stats { return g.stats }

// Run blocks until every worker finishes its share of the record count, a
// worker fails, or ctx is cancelled. A worker failure is returned.
func (g *Generator) Run(ctx context.Context) error {
	sm, err := services.NewManager(g.workers...)
	if err != nil {
		return fmt.Errorf("failed to create service manager: %w", err)
	}

	watcher := services.NewFailureWatcher()
	watcher.WatchManager(sm)

	if err := services.StartManagerAndAwaitHealthy(ctx, sm); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	g.logger.Info("generator running",
		zap.Int("workers", g.cfg.Workers),
		zap.String("mode", g.cfg.Mode),
		zap.Int("records_per_message", g.cfg.RecordsPerMessage),
	)

	stopped := make(chan struct{})
	go func() {
		// workers that finish their count terminate cleanly
		_ = sm.AwaitStopped(context.Background())
		close(stopped)
	}()

	report := time.NewTicker(time.Second)
	defer report.Stop()

	var (
		failure  error
		lastSent int64
		lastAckd int64
	)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case err := <-watcher.Chan():
			failure = err
			break loop

		case <-stopped:
			break loop

		case <-report.C:
			sent := g.stats.RecordsSent.Load()
			ackd := g.stats.Acknowledged.Load()
			g.logger.Info("progress",
				zap.Int64("sent", sent), zap.Int64("sent_delta", sent-lastSent),
				zap.Int64("ackd", ackd), zap.Int64("ackd_delta", ackd-lastAckd),
				zap.Int64("miss", sent-ackd),
			)
			lastSent, lastAckd = sent, ackd
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sm.StopAsync()
	if err := sm.AwaitStopped(stopCtx); err != nil {
		g.logger.Warn("workers did not stop cleanly", zap.Error(err))
	}

	if failure != nil && !errors.Is(failure, context.Canceled) {
		return failure
	}
	return nil
}
