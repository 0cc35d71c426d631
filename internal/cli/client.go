package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/harun/craftpilot/pkg/dashboard"
	"github.com/harun/craftpilot/pkg/executor"
	"github.com/harun/craftpilot/pkg/state"
)

const clientTimeout = 10 * time.Second

// dashboardClient talks to a running agent's dashboard API.
type dashboardClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newDashboardClient(addr, token string) *dashboardClient {
	return &dashboardClient{
		baseURL: "http://" + addr,
		token:   token,
		http:    &http.Client{Timeout: clientTimeout},
	}
}

type historyResponse struct {
	Entries []state.HistoryEntry `json:"entries"`
	Limit   int                  `json:"limit"`
}

type apiError struct {
	Error string `json:"error"`
}

func (c *dashboardClient) Status(ctx context.Context) (*dashboard.StatusResponse, error) {
	var out dashboard.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *dashboardClient) History(ctx context.Context, limit int) ([]state.HistoryEntry, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out historyResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Command posts a manual command. A busy executor comes back as a result,
// not an error.
func (c *dashboardClient) Command(ctx context.Context, command string) (*executor.Result, error) {
	body, err := json.Marshal(dashboard.CommandRequest{Command: command})
	if err != nil {
		return nil, err
	}
	var out executor.Result
	if err := c.do(ctx, http.MethodPost, "/api/command", body, &out, http.StatusConflict); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *dashboardClient) do(ctx context.Context, method, path string, body []byte, out any, accept ...int) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dashboard unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	for _, code := range accept {
		if resp.StatusCode == code {
			ok = true
		}
	}
	if !ok {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("dashboard returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("dashboard returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
