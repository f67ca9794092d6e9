// Package a2a implements the specialist port over the agent-to-agent HTTP
// protocol: a well-known descriptor endpoint plus a task-send endpoint.
package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/skyfuse/skyfuse/internal/domain/agent"
	"github.com/skyfuse/skyfuse/internal/port/specialist"
	"github.com/skyfuse/skyfuse/internal/resilience"
)

// DescriptorPath is where every specialist serves its identity/capability
// descriptor.
const DescriptorPath = "/.well-known/agent.json"

// descriptor is the wire shape of a specialist's capability advertisement.
type descriptor struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	URL                  string        `json:"url"`
	Version              string        `json:"version"`
	Capabilities         []string      `json:"capabilities"`
	Skills               []agent.Skill `json:"skills,omitempty"`
	HealthCheckSupported bool          `json:"health_check_supported"`
}

// sendRequest is the wire shape of a dispatched sub-task.
type sendRequest struct {
	TaskID    string         `json:"task_id"`
	SessionID string         `json:"session_id"`
	Message   sendMessage    `json:"message"`
	Depth     int            `json:"depth"`
	Context   map[string]any `json:"context,omitempty"`
}

type sendMessage struct {
	Role  string     `json:"role"`
	Parts []sendPart `json:"parts"`
}

type sendPart struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// sendResponse mirrors specialist.Response on the wire, plus an explicit
// error field for specialists that report failure in-band.
type sendResponse struct {
	Text     string                 `json:"text"`
	Data     map[string]any         `json:"data,omitempty"`
	Delegate *specialist.Delegation `json:"delegate,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Client talks to specialist agents over HTTP. One circuit breaker is kept
// per endpoint so a flapping specialist cannot poison calls to the others.
type Client struct {
	httpClient  *http.Client
	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
}

// NewClient creates a specialist client. breakerMax and cooldown configure
// the per-endpoint circuit breakers.
func NewClient(timeout time.Duration, breakerMax int, cooldown time.Duration) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		maxFailures: breakerMax,
		cooldown:    cooldown,
		breakers:    make(map[string]*resilience.Breaker),
	}
}

// FetchCard probes the endpoint's descriptor and returns a fresh card.
// The returned card carries no health state; the registry owns that.
func (c *Client) FetchCard(ctx context.Context, endpoint string) (*agent.Card, error) {
	body, err := c.do(ctx, endpoint, http.MethodGet, endpoint+DescriptorPath, nil)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", endpoint, err)
	}

	var d descriptor
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("probe %s: decode descriptor: %w", endpoint, err)
	}
	if d.ID == "" {
		return nil, fmt.Errorf("probe %s: descriptor has no id", endpoint)
	}

	card := &agent.Card{
		ID:      d.ID,
		Name:    d.Name,
		URL:     d.URL,
		Version: d.Version,
		Skills:  d.Skills,
	}
	if card.URL == "" {
		card.URL = endpoint
	}
	for _, tag := range d.Capabilities {
		card.Capabilities = append(card.Capabilities, agent.Capability(tag))
	}
	return card, nil
}

// Send dispatches a sub-task to the specialist behind the card.
func (c *Client) Send(ctx context.Context, card *agent.Card, req specialist.Request) (*specialist.Response, error) {
	payload, err := json.Marshal(sendRequest{
		TaskID:    req.TaskID,
		SessionID: req.SessionID,
		Message: sendMessage{
			Role:  "user",
			Parts: []sendPart{{Type: "text", Content: req.Text}},
		},
		Depth:   req.Depth,
		Context: req.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal send request: %w", err)
	}

	body, err := c.do(ctx, card.URL, http.MethodPost, card.URL+"/tasks/send", payload)
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", card.ID, err)
	}

	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("send to %s: decode response: %w", card.ID, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("send to %s: specialist error: %s", card.ID, resp.Error)
	}

	return &specialist.Response{Text: resp.Text, Data: resp.Data, Delegate: resp.Delegate}, nil
}

// do performs one HTTP round trip through the endpoint's breaker.
func (c *Client) do(ctx context.Context, endpoint, method, url string, body []byte) ([]byte, error) {
	var out []byte
	err := c.breakerFor(endpoint).Execute(func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		out = data
		return nil
	})
	return out, err
}

func (c *Client) breakerFor(endpoint string) *resilience.Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[endpoint]
	if !ok {
		b = resilience.NewBreaker(c.maxFailures, c.cooldown)
		c.breakers[endpoint] = b
	}
	return b
}
