//go:build !windows

// Package service integrates the agent with the host service manager. On
// Linux the agent reports its state to systemd when started by a
// Type=notify unit; elsewhere it simply runs in the foreground.
package service

import (
	"context"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
)

// AgentService runs the agent directly.
type AgentService struct {
	logger  *zap.Logger
	startFn func(ctx context.Context)
}

// New creates a service wrapper.
func New(logger *zap.Logger, startFn func(ctx context.Context)) *AgentService {
	return &AgentService{
		logger:  logger.Named("service"),
		startFn: startFn,
	}
}

// IsWindowsService is always false outside Windows.
func IsWindowsService() bool {
	return false
}

// Run executes the agent in the foreground.
func (s *AgentService) Run() error {
	s.startFn(context.Background())
	return nil
}

// NotifyReady tells systemd the agent has started. It does nothing when the
// process was not started by a notify unit.
func NotifyReady(logger *zap.Logger) {
	notify(logger, daemon.SdNotifyReady)
}

// NotifyStopping tells systemd the agent is shutting down.
func NotifyStopping(logger *zap.Logger) {
	notify(logger, daemon.SdNotifyStopping)
}

func notify(logger *zap.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Warn("systemd notification failed", zap.String("state", state), zap.Error(err))
		return
	}
	if sent {
		logger.Debug("Notified systemd", zap.String("state", state))
	}
}
