package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

// maxOutput bounds the script output kept in logs and error messages.
const maxOutput = 2048

// RefreshInventory runs a discovery-and-push immediately.
func RefreshInventory(refresh func(ctx context.Context) error) Handler {
	return HandlerFunc(func(ctx context.Context, _ models.Command, _ models.Payload) error {
		return refresh(ctx)
	})
}

// SettingWriter persists a single settings key.
type SettingWriter interface {
	Set(key string, value any) error
}

// UpdateSetting writes the command's key through store.
func UpdateSetting(store SettingWriter) Handler {
	return HandlerFunc(func(_ context.Context, _ models.Command, payload models.Payload) error {
		p, ok := payload.(models.UpdateSetting)
		if !ok {
			return fmt.Errorf("unexpected payload %T", payload)
		}
		return store.Set(p.Key, p.Value)
	})
}

// ShellRunner builds the platform shell invocation for a script.
type ShellRunner interface {
	ShellCommand(ctx context.Context, script string, elevated bool) *exec.Cmd
}

// ExecPowerShell runs the command's script through the platform shell. The
// script is killed after its own timeout, or defaultTimeout when it sets
// none. A non-zero exit is a failure carrying the tail of stderr.
func ExecPowerShell(shell ShellRunner, defaultTimeout time.Duration, logger *zap.Logger) Handler {
	logger = logger.Named("exec")
	return HandlerFunc(func(ctx context.Context, cmd models.Command, payload models.Payload) error {
		p, ok := payload.(models.ExecPowerShell)
		if !ok {
			return fmt.Errorf("unexpected payload %T", payload)
		}

		timeout := time.Duration(p.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		c := shell.ShellCommand(cctx, p.Script, p.AsAdmin)
		var stdout, stderr bytes.Buffer
		c.Stdout = &stdout
		c.Stderr = &stderr

		start := time.Now()
		err := c.Run()
		exitCode := 0
		if err != nil {
			exitCode = -1
			var ee *exec.ExitError
			if errors.As(err, &ee) {
				exitCode = ee.ExitCode()
			}
		}

		logger.Info("Script finished",
			zap.String("command_id", cmd.ID),
			zap.Int("exit_code", exitCode),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("stdout", tail(stdout.String(), maxOutput)))

		switch {
		case cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
			return fmt.Errorf("script timed out after %s", timeout)
		case err != nil:
			msg := strings.TrimSpace(tail(stderr.String(), maxOutput))
			if msg == "" {
				return fmt.Errorf("script failed with exit code %d: %w", exitCode, err)
			}
			return fmt.Errorf("script failed with exit code %d: %s", exitCode, msg)
		}
		return nil
	})
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
