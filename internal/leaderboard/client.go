// Package leaderboard uploads the daily count and reads back the leaderboard.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/keyrace/internal/model"
)

const maxBodyBytes = 4 << 20

// ErrNoToken is returned when no credential is configured. No request is sent.
var ErrNoToken = errors.New("no leaderboard token configured")

// Kind classifies sync failures.
type Kind int

const (
	// Unreachable means the request did not produce a response.
	Unreachable Kind = iota + 1
	// Status means the server answered with a non-2xx status.
	Status
	// Payload means the response body could not be decoded.
	Payload
)

func (k Kind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case Status:
		return "status"
	case Payload:
		return "payload"
	default:
		return "unknown"
	}
}

// SyncError describes a failed upload.
type SyncError struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *SyncError) Error() string {
	switch e.Kind {
	case Status:
		return fmt.Sprintf("leaderboard returned status %d", e.Status)
	default:
		return fmt.Sprintf("leaderboard %s: %v", e.Kind, e.Err)
	}
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Client talks to the leaderboard service.
type Client struct {
	host  string
	token func() string
	http  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = &http.Client{Timeout: d}
	}
}

// NewClient creates a client for host. token is read on every upload so a
// credential change takes effect on the next sync.
func NewClient(host string, token func() string, opts ...Option) *Client {
	c := &Client{
		host:  strings.TrimRight(host, "/"),
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload reports count and returns the leaderboard in server order.
func (c *Client) Upload(ctx context.Context, count uint64, onlyFollows bool) ([]model.Player, error) {
	token := ""
	if c.token != nil {
		token = strings.TrimSpace(c.token())
	}
	if token == "" {
		return nil, ErrNoToken
	}

	endpoint, err := c.countURL(count, onlyFollows)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &SyncError{Kind: Unreachable, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &SyncError{Kind: Status, Status: resp.StatusCode}
	}

	var players []model.Player
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&players); err != nil {
		return nil, &SyncError{Kind: Payload, Status: resp.StatusCode, Err: err}
	}
	if players == nil {
		players = []model.Player{}
	}
	return players, nil
}

func (c *Client) countURL(count uint64, onlyFollows bool) (string, error) {
	u, err := url.Parse(c.host + "/count")
	if err != nil {
		return "", fmt.Errorf("invalid leaderboard host %q: %w", c.host, err)
	}
	q := url.Values{}
	q.Set("count", strconv.FormatUint(count, 10))
	if onlyFollows {
		q.Set("only_follows", "1")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
