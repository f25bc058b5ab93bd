package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

const testAgentID = "8f6b2c1e-1111-4a2b-9c3d-000000000001"

type recorded struct {
	method  string
	path    string
	agentID string
	body    []byte
}

// recorder is a fake orchestration service that records every request.
type recorder struct {
	mu       sync.Mutex
	requests []recorded
}

func (rec *recorder) handler(status int, response string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, recorded{
			method:  r.Method,
			path:    r.URL.Path,
			agentID: r.Header.Get(HeaderAgentID),
			body:    body,
		})
		rec.mu.Unlock()
		w.WriteHeader(status)
		io.WriteString(w, response)
	}
}

func (rec *recorder) last(t *testing.T) recorded {
	t.Helper()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.requests) == 0 {
		t.Fatal("no request received")
	}
	return rec.requests[len(rec.requests)-1]
}

func newTestClient(serverURL string) *Client {
	return New(
		func() string { return serverURL },
		func() string { return testAgentID },
		5*time.Second,
		zap.NewNop(),
	)
}

// closedServerURL returns the URL of a server that is no longer listening.
func closedServerURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func TestSendInventory_StampsAgentID(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK, ""))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.SendInventory(context.Background(), models.Inventory{AgentID: "stale-id"})

	got := rec.last(t)
	if got.method != http.MethodPost || got.path != "/api/v1/agents/inventory" {
		t.Errorf("request = %s %s", got.method, got.path)
	}
	if got.agentID != testAgentID {
		t.Errorf("%s = %q, want %q", HeaderAgentID, got.agentID, testAgentID)
	}
	var body map[string]any
	if err := json.Unmarshal(got.body, &body); err != nil {
		t.Fatal(err)
	}
	if body["agent_id"] != testAgentID {
		t.Errorf("payload agent_id = %v, want header identity %q", body["agent_id"], testAgentID)
	}
}

func TestSendMetrics_StampsAgentID(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusAccepted, ""))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.SendMetrics(context.Background(), models.UsageMetrics{
		ApplicationUsage: map[string]models.UsageRecord{"app": {ApplicationName: "app"}},
	})

	got := rec.last(t)
	if got.path != "/api/v1/agents/metrics" {
		t.Errorf("path = %s", got.path)
	}
	var body map[string]any
	if err := json.Unmarshal(got.body, &body); err != nil {
		t.Fatal(err)
	}
	if body["agent_id"] != got.agentID {
		t.Errorf("payload agent_id %v does not match header %q", body["agent_id"], got.agentID)
	}
	if list, ok := body["application_usage"].([]any); !ok || len(list) != 1 {
		t.Errorf("application_usage = %v", body["application_usage"])
	}
}

func TestGetPendingCommands(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
		want     int
	}{
		{"two commands", http.StatusOK, `[{"id":"c1","type":"refresh_inventory","parameters":{}},{"id":"c2","type":"noop"}]`, 2},
		{"empty list", http.StatusOK, `[]`, 0},
		{"null body", http.StatusOK, `null`, 0},
		{"server error", http.StatusInternalServerError, `boom`, 0},
		{"malformed", http.StatusOK, `{"not":"a list"}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			srv := httptest.NewServer(rec.handler(tt.status, tt.response))
			defer srv.Close()

			cmds := newTestClient(srv.URL).GetPendingCommands(context.Background())
			if cmds == nil {
				t.Fatal("GetPendingCommands returned nil")
			}
			if len(cmds) != tt.want {
				t.Errorf("got %d commands, want %d", len(cmds), tt.want)
			}
			if got := rec.last(t); got.path != "/api/v1/agents/"+testAgentID+"/commands" || got.method != http.MethodGet {
				t.Errorf("request = %s %s", got.method, got.path)
			}
		})
	}
}

func TestGetPendingCommands_ConnectionError(t *testing.T) {
	c := newTestClient(closedServerURL())
	cmds := c.GetPendingCommands(context.Background())
	if cmds == nil || len(cmds) != 0 {
		t.Errorf("GetPendingCommands = %#v, want empty non-nil slice", cmds)
	}
}

func TestBestEffortOperations_FailingTransport(t *testing.T) {
	c := newTestClient(closedServerURL())
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Register(ctx, models.AgentInfo{ComputerName: "PC"})
		c.SendInventory(ctx, models.Inventory{})
		c.SendMetrics(ctx, models.UsageMetrics{})
		c.SendCommandResult(ctx, "c1", false, "failed")
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("best-effort operations did not return")
	}
}

func TestSendCommandResult(t *testing.T) {
	tests := []struct {
		name      string
		success   bool
		errMsg    string
		wantError any
	}{
		{"success", true, "", nil},
		{"failure", false, "unknown command type \"noop\"", "unknown command type \"noop\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			srv := httptest.NewServer(rec.handler(http.StatusOK, ""))
			defer srv.Close()

			newTestClient(srv.URL).SendCommandResult(context.Background(), "c/1", tt.success, tt.errMsg)

			got := rec.last(t)
			if got.path != "/api/v1/agents/commands/c/1/result" {
				t.Errorf("path = %s", got.path)
			}
			var body map[string]any
			if err := json.Unmarshal(got.body, &body); err != nil {
				t.Fatal(err)
			}
			if body["success"] != tt.success {
				t.Errorf("success = %v, want %v", body["success"], tt.success)
			}
			if errVal, present := body["error"]; !present || errVal != tt.wantError {
				t.Errorf("error = %v (present %v), want %v", errVal, present, tt.wantError)
			}
			if _, ok := body["timestamp"].(string); !ok {
				t.Error("timestamp missing")
			}
		})
	}
}

func TestDo_WrapsTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, strings.Repeat("x", 4096))
	}))
	defer srv.Close()

	tests := []struct {
		name string
		url  string
	}{
		{"non-success status", srv.URL},
		{"connection refused", closedServerURL()},
		{"no url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient(tt.url).do(context.Background(), http.MethodPost, pathInventory, models.Inventory{})
			if !errors.Is(err, ErrTransport) {
				t.Errorf("error = %v, want ErrTransport", err)
			}
		})
	}
}

func TestBaseURLResolvedPerRequest(t *testing.T) {
	first := &recorder{}
	srvA := httptest.NewServer(first.handler(http.StatusOK, "[]"))
	defer srvA.Close()
	second := &recorder{}
	srvB := httptest.NewServer(second.handler(http.StatusOK, "[]"))
	defer srvB.Close()

	current := srvA.URL + "/"
	c := New(func() string { return current }, func() string { return testAgentID }, time.Second, zap.NewNop())

	c.GetPendingCommands(context.Background())
	current = srvB.URL
	c.GetPendingCommands(context.Background())

	if len(first.requests) != 1 || len(second.requests) != 1 {
		t.Errorf("requests per server = %d, %d; want 1, 1", len(first.requests), len(second.requests))
	}
}
