package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

type result struct {
	id      string
	success bool
	errMsg  string
	ctxErr  error
}

type fakeReporter struct {
	mu      sync.Mutex
	results []result
}

func (f *fakeReporter) SendCommandResult(ctx context.Context, id string, success bool, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result{id: id, success: success, errMsg: errMsg, ctxErr: ctx.Err()})
}

func (f *fakeReporter) all() []result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]result(nil), f.results...)
}

func newTestDispatcher() (*Dispatcher, *fakeReporter) {
	rep := &fakeReporter{}
	return New(rep, 1000, 10, zap.NewNop()), rep
}

func TestDispatch_UnknownCommandReportsOnce(t *testing.T) {
	d, rep := newTestDispatcher()
	cmd := models.Command{ID: "c1", Type: "noop", Parameters: map[string]any{}}

	err := d.Dispatch(context.Background(), cmd)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Dispatch error = %v, want ErrUnknownCommand", err)
	}

	results := rep.all()
	if len(results) != 1 {
		t.Fatalf("got %d results, want exactly 1", len(results))
	}
	r := results[0]
	if r.id != "c1" || r.success || r.errMsg == "" {
		t.Errorf("result = %+v, want failed c1 with an error message", r)
	}
}

func TestDispatch_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		cmd         models.Command
		handler     Handler
		wantSuccess bool
		wantErrIs   error
		wantMsg     string
	}{
		{
			name: "handler succeeds",
			cmd:  models.Command{ID: "a", Type: "refresh_inventory"},
			handler: HandlerFunc(func(context.Context, models.Command, models.Payload) error {
				return nil
			}),
			wantSuccess: true,
		},
		{
			name: "handler fails",
			cmd:  models.Command{ID: "b", Type: "refresh_inventory"},
			handler: HandlerFunc(func(context.Context, models.Command, models.Payload) error {
				return errors.New("service unreachable")
			}),
			wantMsg: "service unreachable",
		},
		{
			name: "handler panics",
			cmd:  models.Command{ID: "c", Type: "refresh_inventory"},
			handler: HandlerFunc(func(context.Context, models.Command, models.Payload) error {
				panic("nil map")
			}),
			wantMsg: "handler panic",
		},
		{
			name:      "known kind without handler",
			cmd:       models.Command{ID: "d", Type: "install_application", Parameters: map[string]any{"application_name": "7zip"}},
			wantErrIs: ErrUnknownCommand,
			wantMsg:   "install_application",
		},
		{
			name:    "invalid parameters",
			cmd:     models.Command{ID: "e", Type: "update_setting", Parameters: map[string]any{}},
			handler: UpdateSetting(nil),
			wantMsg: "invalid parameters",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, rep := newTestDispatcher()
			if tt.handler != nil {
				d.Register(models.CommandType(tt.cmd.Type), tt.handler)
			}

			err := d.Dispatch(context.Background(), tt.cmd)
			if tt.wantErrIs != nil && !errors.Is(err, tt.wantErrIs) {
				t.Errorf("error = %v, want %v", err, tt.wantErrIs)
			}

			results := rep.all()
			if len(results) != 1 {
				t.Fatalf("got %d results, want 1", len(results))
			}
			r := results[0]
			if r.id != tt.cmd.ID || r.success != tt.wantSuccess {
				t.Errorf("result = %+v", r)
			}
			if tt.wantSuccess && r.errMsg != "" {
				t.Errorf("successful result carries error %q", r.errMsg)
			}
			if !tt.wantSuccess && !strings.Contains(r.errMsg, tt.wantMsg) {
				t.Errorf("errMsg = %q, want it to contain %q", r.errMsg, tt.wantMsg)
			}
		})
	}
}

func TestDispatch_PassesTypedPayload(t *testing.T) {
	d, _ := newTestDispatcher()
	var got models.Payload
	d.Register(models.CommandUpdateSetting, HandlerFunc(func(_ context.Context, _ models.Command, p models.Payload) error {
		got = p
		return nil
	}))
	d.Dispatch(context.Background(), models.Command{
		ID: "x", Type: "update_setting", Parameters: map[string]any{"key": "ApiUrl", "value": "https://new"},
	})
	p, ok := got.(models.UpdateSetting)
	if !ok || p.Key != "ApiUrl" || p.Value != "https://new" {
		t.Errorf("payload = %#v", got)
	}
}

func TestDispatchAll_InOrder(t *testing.T) {
	d, rep := newTestDispatcher()
	d.Register(models.CommandRefreshInventory, RefreshInventory(func(context.Context) error { return nil }))

	d.DispatchAll(context.Background(), []models.Command{
		{ID: "1", Type: "refresh_inventory"},
		{ID: "2", Type: "noop"},
		{ID: "3", Type: "refresh_inventory"},
	})

	results := rep.all()
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	want := []struct {
		id      string
		success bool
	}{{"1", true}, {"2", false}, {"3", true}}
	for i, w := range want {
		if results[i].id != w.id || results[i].success != w.success {
			t.Errorf("results[%d] = %+v, want id %s success %v", i, results[i], w.id, w.success)
		}
	}
}

func TestDispatchAll_ExpiredContextReportsRemaining(t *testing.T) {
	d, rep := newTestDispatcher()
	called := false
	d.Register(models.CommandRefreshInventory, RefreshInventory(func(context.Context) error {
		called = true
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.DispatchAll(ctx, []models.Command{
		{ID: "1", Type: "refresh_inventory"},
		{ID: "2", Type: "refresh_inventory"},
	})

	if called {
		t.Error("handler ran after the context ended")
	}
	results := rep.all()
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.success || !strings.Contains(r.errMsg, "context canceled") {
			t.Errorf("result = %+v, want failure with context error", r)
		}
		if r.ctxErr != nil {
			t.Errorf("result for %s reported with a dead context", r.id)
		}
	}
}

// stalledReporter blocks every report until its context ends.
type stalledReporter struct {
	mu    sync.Mutex
	count int
}

func (s *stalledReporter) SendCommandResult(ctx context.Context, _ string, _ bool, _ string) {
	<-ctx.Done()
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
}

func TestDispatchAll_SkippedReportsShareOneDeadline(t *testing.T) {
	rep := &stalledReporter{}
	d := New(rep, 1000, 10, zap.NewNop())
	d.reportTimeout = 50 * time.Millisecond

	cmds := make([]models.Command, 100)
	for i := range cmds {
		cmds[i] = models.Command{ID: fmt.Sprintf("c%d", i), Type: "refresh_inventory"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	d.DispatchAll(ctx, cmds)
	elapsed := time.Since(start)

	if elapsed > 10*d.reportTimeout {
		t.Errorf("DispatchAll took %v with a stalled reporter, want about one report timeout (%v)", elapsed, d.reportTimeout)
	}
	rep.mu.Lock()
	defer rep.mu.Unlock()
	if rep.count != len(cmds) {
		t.Errorf("reported %d commands, want %d", rep.count, len(cmds))
	}
}
