package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"soho/internal/device"

	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable wraps failures talking to the registry (transport errors,
// 5xx responses and an open circuit breaker).
var ErrUnavailable = errors.New("registry unavailable")

// Client is a device.Repository backed by the upstream device registry,
// with a circuit breaker in front of every HTTP call.
type Client struct {
	base   string
	client *http.Client
	cb     *gobreaker.CircuitBreaker[[]byte]
	logger *slog.Logger
}

// NewClient creates a registry client for base (e.g. "http://registry:8080/api").
func NewClient(base string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "registry",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 4xx answers mean the registry is healthy.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit_breaker", "upstream", name, "from", from.String(), "to", to.String())
		},
	})
	return &Client{
		base:   strings.TrimRight(base, "/"),
		client: client,
		cb:     cb,
		logger: logger,
	}
}

// HealthURL returns scheme+host+/health of the registry. Empty if base is invalid.
func (c *Client) HealthURL() string {
	u, err := url.Parse(c.base)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Path = "/health"
	u.RawQuery = ""
	return u.String()
}

func (c *Client) Get(ctx context.Context, id int64) (*device.Device, error) {
	var d device.Device
	if err := c.do(ctx, http.MethodGet, c.deviceURL(id), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) List(ctx context.Context) ([]device.Device, error) {
	var out []device.Device
	if err := c.do(ctx, http.MethodGet, c.base+"/devices", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []device.Device{}
	}
	return out, nil
}

func (c *Client) Save(ctx context.Context, d device.Device) (*device.Device, error) {
	method, target := http.MethodPost, c.base+"/devices"
	if d.ID != 0 {
		method, target = http.MethodPut, c.deviceURL(d.ID)
	}
	var saved device.Device
	if err := c.do(ctx, method, target, d, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, c.deviceURL(id), nil, nil)
}

func (c *Client) deviceURL(id int64) string {
	return c.base + "/devices/" + strconv.FormatInt(id, 10)
}

// do sends one request through the breaker and decodes the JSON answer into out.
func (c *Client) do(ctx context.Context, method, target string, in, out any) error {
	raw, err := c.cb.Execute(func() ([]byte, error) {
		return c.doHTTP(ctx, method, target, in)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doHTTP(ctx context.Context, method, target string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("registry did not answer", "method", method, "url", target, "err", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", device.ErrNotFound, target)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: registry rejected request (status %d)", device.ErrInvalid, resp.StatusCode)
	case resp.StatusCode >= 300:
		c.logger.Warn("registry answered with error", "method", method, "url", target, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	c.logger.Debug("registry answer", "method", method, "url", target, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return raw, nil
}
