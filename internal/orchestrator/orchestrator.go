// Package orchestrator owns the agent lifecycle: one bootstrap
// discovery-and-push, then three independent periodic loops (discovery,
// usage metrics, command sync) that run until the context is cancelled.
//
// A tick that fails or panics is logged and the loop waits for its next
// tick; sibling loops are never affected. Ticks within one loop are
// sequential. Every tick runs under a timeout equal to its loop interval
// and under the run context, so shutdown is bounded.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pcsuccession/agent/internal/models"
)

// Discoverer produces a full inventory. The error reports failed
// sub-collections; the inventory is usable regardless.
type Discoverer interface {
	PerformFullDiscovery(ctx context.Context) (models.Inventory, error)
}

// MetricsCollector produces one usage metrics sample.
type MetricsCollector interface {
	Collect(ctx context.Context) (models.UsageMetrics, error)
}

// SyncClient is the best-effort transport to the orchestration service.
type SyncClient interface {
	Register(ctx context.Context, info models.AgentInfo)
	SendInventory(ctx context.Context, inv models.Inventory)
	SendMetrics(ctx context.Context, m models.UsageMetrics)
	GetPendingCommands(ctx context.Context) []models.Command
}

// CommandDispatcher executes pulled commands and reports their results.
type CommandDispatcher interface {
	DispatchAll(ctx context.Context, cmds []models.Command)
}

// Settings exposes the runtime switches read on every tick.
type Settings interface {
	MonitoringEnabled() bool
}

// Deps are the collaborators driven by the loops.
type Deps struct {
	Discovery  Discoverer
	Metrics    MetricsCollector
	Sync       SyncClient
	Dispatcher CommandDispatcher
	Settings   Settings

	// AgentInfo builds the registration payload. Nil skips registration.
	AgentInfo func(ctx context.Context) models.AgentInfo
}

// Schedule holds the loop intervals.
type Schedule struct {
	Discovery time.Duration
	Metrics   time.Duration
	Sync      time.Duration
}

// DefaultSchedule is 6h discovery, 15m metrics and 5m command sync.
func DefaultSchedule() Schedule {
	return Schedule{
		Discovery: 6 * time.Hour,
		Metrics:   15 * time.Minute,
		Sync:      5 * time.Minute,
	}
}

// Orchestrator runs the agent's periodic work.
type Orchestrator struct {
	deps     Deps
	schedule Schedule
	logger   *zap.Logger
}

// New creates an orchestrator.
func New(deps Deps, schedule Schedule, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		deps:     deps,
		schedule: schedule,
		logger:   logger.Named("orchestrator"),
	}
}

// Run performs the bootstrap and then blocks running the three loops until
// ctx is cancelled. It returns nil on a normal shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("Orchestrator starting",
		zap.Duration("discovery_interval", o.schedule.Discovery),
		zap.Duration("metrics_interval", o.schedule.Metrics),
		zap.Duration("sync_interval", o.schedule.Sync))

	o.runTick(ctx, "bootstrap", o.schedule.Discovery, o.bootstrap)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.loop(gctx, "discovery", o.schedule.Discovery, o.RefreshInventory) })
	g.Go(func() error { return o.loop(gctx, "metrics", o.schedule.Metrics, o.metricsTick) })
	g.Go(func() error { return o.loop(gctx, "sync", o.schedule.Sync, o.syncTick) })

	err := g.Wait()
	o.logger.Info("Orchestrator stopped")
	return err
}

// RefreshInventory runs one discovery and pushes the result. Partial
// inventories are pushed; only cancellation is returned as an error.
func (o *Orchestrator) RefreshInventory(ctx context.Context) error {
	inv, err := o.deps.Discovery.PerformFullDiscovery(ctx)
	if err != nil {
		o.logger.Warn("Inventory is partial", zap.Error(err))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	o.deps.Sync.SendInventory(ctx, inv)
	return nil
}

func (o *Orchestrator) bootstrap(ctx context.Context) error {
	if o.deps.AgentInfo != nil {
		o.deps.Sync.Register(ctx, o.deps.AgentInfo(ctx))
	}
	return o.RefreshInventory(ctx)
}

func (o *Orchestrator) metricsTick(ctx context.Context) error {
	if o.deps.Settings != nil && !o.deps.Settings.MonitoringEnabled() {
		o.logger.Debug("Monitoring disabled, skipping metrics tick")
		return nil
	}
	m, err := o.deps.Metrics.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collecting usage metrics: %w", err)
	}
	o.deps.Sync.SendMetrics(ctx, m)
	return nil
}

func (o *Orchestrator) syncTick(ctx context.Context) error {
	cmds := o.deps.Sync.GetPendingCommands(ctx)
	if len(cmds) == 0 {
		return nil
	}
	o.logger.Info("Received commands", zap.Int("count", len(cmds)))
	o.deps.Dispatcher.DispatchAll(ctx, cmds)
	return nil
}

// loop waits for each tick and runs it inline. It always returns nil so a
// stopping loop never cancels its siblings.
func (o *Orchestrator) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Debug("Loop stopped", zap.String("loop", name))
			return nil
		case <-ticker.C:
			o.runTick(ctx, name, interval, tick)
		}
	}
}

// runTick executes one tick under a timeout and isolates its failures.
func (o *Orchestrator) runTick(ctx context.Context, name string, timeout time.Duration, tick func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Tick panicked",
				zap.String("loop", name),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := tick(tctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		o.logger.Warn("Tick failed",
			zap.String("loop", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	o.logger.Debug("Tick completed",
		zap.String("loop", name),
		zap.Duration("elapsed", time.Since(start)))
}
