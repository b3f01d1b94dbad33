// Package client wraps the backend HTTP contract for the game. Every
// failure mode — no configured backend, network error, non-2xx status,
// malformed body — surfaces as ErrUnavailable so callers can treat the
// event as undelivered and keep playing.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/securequest/api/internal/quest"
)

// ErrUnavailable is returned for every sync failure. Callers must never
// treat it as fatal: mutating calls get queued, reads degrade the display.
var ErrUnavailable = errors.New("backend unavailable")

type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// New creates a client for the backend at base (e.g. "http://localhost:8080").
// An empty base means no backend is configured; every call short-circuits
// to ErrUnavailable without dialing.
func New(base string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Configured reports whether a backend base address is set.
func (c *Client) Configured() bool { return c.base != "" }

func (c *Client) Stats(ctx context.Context) (quest.StatsSnapshot, error) {
	var stats quest.StatsSnapshot
	err := c.get(ctx, "/api/stats", &stats)
	return stats, err
}

func (c *Client) Play(ctx context.Context, name string) (quest.StatsSnapshot, error) {
	var stats quest.StatsSnapshot
	err := c.post(ctx, "/api/play", map[string]string{"name": name}, &stats)
	return stats, err
}

func (c *Client) Retry(ctx context.Context) (quest.StatsSnapshot, error) {
	var stats quest.StatsSnapshot
	err := c.post(ctx, "/api/retry", map[string]string{}, &stats)
	return stats, err
}

func (c *Client) Complete(ctx context.Context) (quest.StatsSnapshot, error) {
	var stats quest.StatsSnapshot
	err := c.post(ctx, "/api/complete", map[string]string{}, &stats)
	return stats, err
}

func (c *Client) Score(ctx context.Context, name string, seconds int) ([]quest.ScoreRecord, error) {
	var top []quest.ScoreRecord
	err := c.post(ctx, "/api/score", map[string]any{"name": name, "time": seconds}, &top)
	return top, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]quest.ScoreRecord, error) {
	var top []quest.ScoreRecord
	err := c.get(ctx, "/api/leaderboard?limit="+strconv.Itoa(limit), &top)
	return top, err
}

// Send delivers a queued event. The flush path goes through here so the
// queue does not need to know which endpoint each kind maps to.
func (c *Client) Send(ctx context.Context, ev quest.PendingEvent) error {
	switch ev.Kind {
	case quest.EventPlay:
		_, err := c.Play(ctx, ev.Name)
		return err
	case quest.EventRetry:
		_, err := c.Retry(ctx)
		return err
	case quest.EventComplete:
		_, err := c.Complete(ctx)
		return err
	case quest.EventScore:
		_, err := c.Score(ctx, ev.Name, ev.TimeSeconds)
		return err
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.base == "" {
		return ErrUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return c.unavailable(path, err)
	}
	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if c.base == "" {
		return ErrUnavailable
	}
	data, err := json.Marshal(body)
	if err != nil {
		return c.unavailable(path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return c.unavailable(path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return c.unavailable(path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.unavailable(path, fmt.Errorf("status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.unavailable(path, err)
	}
	return nil
}

func (c *Client) unavailable(path string, err error) error {
	c.logger.Debug("sync call failed", "path", path, "error", err)
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
}
