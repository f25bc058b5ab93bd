// Package dispatch routes commands pulled from the orchestration service to
// their handlers and reports exactly one result per command.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pcsuccession/agent/internal/models"
)

// ErrUnknownCommand marks a command whose type has no registered handler.
var ErrUnknownCommand = errors.New("unknown command")

// defaultReportTimeout bounds result reports sent after the tick context
// ended.
const defaultReportTimeout = 10 * time.Second

// Handler executes one decoded command.
type Handler interface {
	Handle(ctx context.Context, cmd models.Command, payload models.Payload) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd models.Command, payload models.Payload) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cmd models.Command, payload models.Payload) error {
	return f(ctx, cmd, payload)
}

// ResultReporter receives command outcomes.
type ResultReporter interface {
	SendCommandResult(ctx context.Context, commandID string, success bool, errMsg string)
}

// Dispatcher is safe for concurrent use; Register may be called while
// commands are being dispatched.
type Dispatcher struct {
	reporter      ResultReporter
	limiter       *rate.Limiter
	logger        *zap.Logger
	reportTimeout time.Duration

	mu       sync.RWMutex
	handlers map[models.CommandType]Handler
}

// New creates a dispatcher that starts at most ratePerSecond commands per
// second, with bursts of up to burst commands.
func New(reporter ResultReporter, ratePerSecond float64, burst int, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		reporter:      reporter,
		limiter:       rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		logger:        logger.Named("dispatch"),
		reportTimeout: defaultReportTimeout,
		handlers:      make(map[models.CommandType]Handler),
	}
}

// Register installs h for kind, replacing any previous handler.
func (d *Dispatcher) Register(kind models.CommandType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Dispatch runs one command and reports its outcome. The returned error is
// the reported failure, or nil on success.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd models.Command) error {
	start := time.Now()
	err := d.run(ctx, cmd)

	fields := []zap.Field{
		zap.String("command_id", cmd.ID),
		zap.String("type", cmd.Type),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		d.logger.Warn("Command failed", append(fields, zap.Error(err))...)
	} else {
		d.logger.Info("Command completed", fields...)
	}

	d.report(ctx, cmd.ID, err)
	return err
}

// DispatchAll runs cmds in order, paced by the rate limiter. When ctx ends
// while waiting, every remaining command is reported as failed. Those
// reports share a single deadline, so shutdown is bounded regardless of how
// many commands were pending.
func (d *Dispatcher) DispatchAll(ctx context.Context, cmds []models.Command) {
	for i, cmd := range cmds {
		if err := d.limiter.Wait(ctx); err != nil {
			d.skip(ctx, cmds[i:], err)
			return
		}
		d.Dispatch(ctx, cmd)
	}
}

func (d *Dispatcher) skip(ctx context.Context, cmds []models.Command, cause error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.reportTimeout)
	defer cancel()

	failure := fmt.Errorf("not started: %w", cause)
	d.logger.Warn("Commands skipped",
		zap.Int("count", len(cmds)),
		zap.Error(failure))
	for _, cmd := range cmds {
		d.send(rctx, cmd.ID, failure)
	}
}

// run decodes and executes cmd, converting a handler panic into an error.
func (d *Dispatcher) run(ctx context.Context, cmd models.Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	payload, err := cmd.Decode()
	if err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}

	d.mu.RLock()
	h, ok := d.handlers[payload.Kind()]
	d.mu.RUnlock()
	if !ok {
		if _, unknown := payload.(models.UnknownPayload); unknown {
			return fmt.Errorf("%w: type %q", ErrUnknownCommand, cmd.Type)
		}
		return fmt.Errorf("%w: no handler for %q", ErrUnknownCommand, cmd.Type)
	}
	return h.Handle(ctx, cmd, payload)
}

// report sends the outcome. It detaches from ctx cancellation so that a
// command whose tick expired is still reported.
func (d *Dispatcher) report(ctx context.Context, id string, err error) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), d.reportTimeout)
		defer cancel()
	}
	d.send(ctx, id, err)
}

func (d *Dispatcher) send(ctx context.Context, id string, err error) {
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "command failed"
		}
		d.reporter.SendCommandResult(ctx, id, false, msg)
		return
	}
	d.reporter.SendCommandResult(ctx, id, true, "")
}
