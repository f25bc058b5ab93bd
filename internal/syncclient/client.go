// Package syncclient speaks the agent's HTTP/JSON protocol to the
// orchestration service. Every operation is best-effort: failures are logged
// and swallowed, and the next scheduled tick is the only retry.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

// ErrTransport marks a failed or non-success exchange with the service.
var ErrTransport = errors.New("transport failure")

// HeaderAgentID carries the agent identity on every request.
const HeaderAgentID = "X-Agent-Id"

const (
	pathRegister  = "/api/v1/agents/register"
	pathInventory = "/api/v1/agents/inventory"
	pathMetrics   = "/api/v1/agents/metrics"

	// maxLoggedBody bounds the response body included in failure logs.
	maxLoggedBody = 512

	// maxResponseBody bounds the command list read from the service.
	maxResponseBody = 8 << 20
)

// Client is safe for concurrent use by the orchestrator loops.
type Client struct {
	http    *http.Client
	baseURL func() string
	agentID func() string
	logger  *zap.Logger
}

// New creates a client. baseURL and agentID are resolved on every request so
// that a changed ApiUrl setting applies from the next call on.
func New(baseURL, agentID func() string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		agentID: agentID,
		logger:  logger.Named("sync"),
	}
}

// Register announces the agent to the service.
func (c *Client) Register(ctx context.Context, info models.AgentInfo) {
	if _, err := c.do(ctx, http.MethodPost, pathRegister, info); err != nil {
		c.logger.Warn("Agent registration failed", zap.Error(err))
		return
	}
	c.logger.Info("Agent registered", zap.String("computer_name", info.ComputerName))
}

// SendInventory pushes a full inventory. The payload's agent id is set to
// the identity sent in the header.
func (c *Client) SendInventory(ctx context.Context, inv models.Inventory) {
	inv.AgentID = c.agentID()
	if _, err := c.do(ctx, http.MethodPost, pathInventory, inv); err != nil {
		c.logger.Warn("Failed to send inventory", zap.Error(err))
		return
	}
	c.logger.Info("Inventory sent", zap.Int("applications", len(inv.InstalledApplications)))
}

// SendMetrics pushes a usage metrics sample.
func (c *Client) SendMetrics(ctx context.Context, m models.UsageMetrics) {
	m.AgentID = c.agentID()
	if _, err := c.do(ctx, http.MethodPost, pathMetrics, m); err != nil {
		c.logger.Warn("Failed to send metrics", zap.Error(err))
		return
	}
	c.logger.Debug("Metrics sent", zap.Int("applications", len(m.ApplicationUsage)))
}

// GetPendingCommands pulls the commands queued for this agent. It returns an
// empty, non-nil slice on any failure.
func (c *Client) GetPendingCommands(ctx context.Context) []models.Command {
	path := "/api/v1/agents/" + url.PathEscape(c.agentID()) + "/commands"
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		c.logger.Warn("Failed to fetch pending commands", zap.Error(err))
		return []models.Command{}
	}

	var cmds []models.Command
	if err := json.Unmarshal(body, &cmds); err != nil {
		c.logger.Warn("Failed to decode pending commands", zap.Error(err))
		return []models.Command{}
	}
	if cmds == nil {
		cmds = []models.Command{}
	}
	return cmds
}

// SendCommandResult reports the outcome of a command. errMsg is sent as null
// when empty.
func (c *Client) SendCommandResult(ctx context.Context, commandID string, success bool, errMsg string) {
	result := models.CommandResult{
		Success:   success,
		Timestamp: time.Now().UTC(),
	}
	if errMsg != "" {
		result.Error = &errMsg
	}
	path := "/api/v1/agents/commands/" + url.PathEscape(commandID) + "/result"
	if _, err := c.do(ctx, http.MethodPost, path, result); err != nil {
		c.logger.Warn("Failed to send command result",
			zap.String("command_id", commandID),
			zap.Error(err))
	}
}

// do performs one request and returns the response body of a 2xx reply.
// All failures wrap ErrTransport.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	base := strings.TrimRight(c.baseURL(), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: no server URL configured", ErrTransport)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding %s body: %v", ErrTransport, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	req.Header.Set(HeaderAgentID, c.agentID())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
		io.Copy(io.Discard, resp.Body)
		c.logger.Warn("Service returned non-success status",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(snippet)))
		return nil, fmt.Errorf("%w: %s %s: server returned %d", ErrTransport, method, path, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}
	return data, nil
}
