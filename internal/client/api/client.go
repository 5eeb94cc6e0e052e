// Package api is the HTTP client for the collaborator endpoints the
// real-time layer consumes: the session roster fetch used to resynchronize
// after connect, and the message dispatch call used by auto-resume.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	v1 "github.com/agentdeck/agentdeck/pkg/api/v1"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to the agentdeck HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logger.Logger
}

// NewClient creates an API client for the given base URL
// (http://host:port).
func NewClient(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultRequestTimeout},
		logger:  log.WithFields(zap.String("component", "api-client")),
	}
}

// FetchSessionProcesses returns the full current roster. Called after every
// connect frame to resynchronize; the stream itself replays nothing.
func (c *Client) FetchSessionProcesses(ctx context.Context) ([]v1.SessionProcess, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/session-processes", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build roster request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("roster fetch failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("roster fetch returned %d", resp.StatusCode)
	}

	var list v1.SessionProcessList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode roster: %w", err)
	}
	return list.Processes, nil
}

// DispatchMessages sends a batch of messages to a session. Implements
// autoresume.Dispatcher.
func (c *Client) DispatchMessages(ctx context.Context, sessionID string, dispatch v1.DispatchRequest) error {
	body, err := json.Marshal(dispatch)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/v1/sessions/%s/messages", c.baseURL, sessionID),
		bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("dispatch returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.logger.Debug("dispatched message batch",
		zap.String("session_id", sessionID),
		zap.Int("message_count", len(dispatch.Messages)))
	return nil
}
