package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// DefaultPullTimeout bounds every pull request
const DefaultPullTimeout = 5 * time.Second

// PullClient is the request/response channel to the match server
type PullClient struct {
	baseURL string
	client  *http.Client
	timeout time.Duration

	mu    sync.RWMutex
	token string
}

func NewPullClient(baseURL string, timeout time.Duration) *PullClient {
	if timeout <= 0 {
		timeout = DefaultPullTimeout
	}
	return &PullClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
	}
}

// SetToken sets the bearer credential sent with every request
func (c *PullClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *PullClient) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Do performs one bounded request. payload is JSON encoded when non-nil and out,
// when non-nil, receives the decoded 2xx body. It never retries.
func (c *PullClient) Do(ctx context.Context, method, endpoint string, payload, out any) error {
	op := method + " " + endpoint

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	} else if method != http.MethodGet {
		body = strings.NewReader("{}")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		// caller cancellation is not a transport failure
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Op: op, After: c.timeout}
		}
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Op: op, After: c.timeout}
		}
		return &NetworkError{Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("pull request completed")

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case resp.StatusCode >= 500:
		return &NetworkError{Op: op, Err: fmt.Errorf("server returned status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		rej := &RejectedError{Status: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
		var eb wire.ErrorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Error != "" {
			rej.Reason = eb.Error
			rej.Detail = eb.Detail
		}
		return rej
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &NetworkError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func (c *PullClient) Get(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *PullClient) Post(ctx context.Context, endpoint string, payload, out any) error {
	return c.Do(ctx, http.MethodPost, endpoint, payload, out)
}
