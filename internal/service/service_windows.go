//go:build windows

// Package service integrates the agent with the host service manager. On
// Windows the agent enters the SCM control loop when started by the SCM and
// runs in the foreground otherwise.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

const serviceName = "PCSuccessionAgent"

// stopTimeout bounds how long a stop request waits for the agent to return.
const stopTimeout = 30 * time.Second

// AgentService implements svc.Handler.
type AgentService struct {
	logger  *zap.Logger
	startFn func(ctx context.Context)
}

// New creates a service wrapper. startFn must return once ctx is cancelled.
func New(logger *zap.Logger, startFn func(ctx context.Context)) *AgentService {
	return &AgentService{
		logger:  logger.Named("service"),
		startFn: startFn,
	}
}

// IsWindowsService reports whether the process was started by the SCM.
func IsWindowsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Run enters the SCM control loop and blocks until the service stops.
func (s *AgentService) Run() error {
	return svc.Run(serviceName, s)
}

// Execute implements svc.Handler.
func (s *AgentService) Execute(_ []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.startFn(ctx)
	}()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	s.logger.Info("Windows service started")

	for {
		select {
		case <-done:
			s.logger.Warn("Agent exited while the service was running")
			return false, 1
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				s.logger.Info("Windows service stopping")
				changes <- svc.Status{State: svc.StopPending, WaitHint: uint32(stopTimeout.Milliseconds())}
				cancel()
				select {
				case <-done:
				case <-time.After(stopTimeout):
					s.logger.Warn("Agent did not stop in time", zap.Duration("timeout", stopTimeout))
				}
				return false, 0
			default:
				s.logger.Warn("Unexpected service control request",
					zap.Uint32("cmd", uint32(c.Cmd)))
			}
		}
	}
}

// NotifyReady is a no-op on Windows; the SCM is told in Execute.
func NotifyReady(*zap.Logger) {}

// NotifyStopping is a no-op on Windows.
func NotifyStopping(*zap.Logger) {}
