// Package backend is the REST client for call bookkeeping.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const maxBody = 1 << 20

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// BeaconTimeout bounds the fire-and-forget end call sent on shutdown.
	BeaconTimeout time.Duration
}

type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	beacon time.Duration
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend base url %q: invalid", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BeaconTimeout <= 0 {
		opts.BeaconTimeout = 2 * time.Second
	}
	if exp, ok := TokenExpiry(opts.Token); ok {
		ev := log.Info()
		if time.Now().After(exp) {
			ev = log.Warn()
		}
		ev.Str("module", "adapters.backend").Time("expires_at", exp).Msg("backend token expiry")
	}
	return &Client{
		base:   base,
		token:  opts.Token,
		http:   &http.Client{Timeout: opts.Timeout},
		beacon: opts.BeaconTimeout,
	}, nil
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend status %d", e.Status)
	}
	return fmt.Sprintf("backend status %d: %s", e.Status, e.Message)
}

func (c *Client) InitiateCall(ctx context.Context, req core.InitiateRequest) (string, error) {
	body, err := c.post(ctx, "/calls", req)
	if err != nil {
		return "", err
	}
	for _, path := range []string{"callId", "data.callId", "call.id", "data.call.id", "id"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.String() != "" {
			return r.String(), nil
		}
	}
	return "", domain.ErrNoCallID
}

func (c *Client) AnswerCall(ctx context.Context, callID string) error {
	_, err := c.post(ctx, "/calls/"+url.PathEscape(callID)+"/answer", nil)
	return err
}

func (c *Client) DeclineCall(ctx context.Context, callID string) error {
	_, err := c.post(ctx, "/calls/"+url.PathEscape(callID)+"/decline", nil)
	return err
}

func (c *Client) EndCall(ctx context.Context, callID string) error {
	_, err := c.post(ctx, "/calls/"+url.PathEscape(callID)+"/end", nil)
	return err
}

// EndCallBeacon sends the end call with a short deadline and ignores the
// outcome.
func (c *Client) EndCallBeacon(callID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.beacon)
	defer cancel()
	if _, err := c.post(ctx, "/calls/"+url.PathEscape(callID)+"/end?beacon=1", nil); err != nil {
		log.Debug().Str("module", "adapters.backend").Str("call_id", callID).Err(err).Msg("end beacon failed")
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	u := *c.base
	u.Path += ref.Path
	u.RawPath = c.base.EscapedPath() + ref.EscapedPath()
	u.RawQuery = ref.RawQuery

	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", ref.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("POST %s: read body: %w", ref.Path, err)
	}
	log.Debug().Str("module", "adapters.backend").Str("path", ref.Path).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(data, "error").String()
		if msg == "" {
			msg = gjson.GetBytes(data, "message").String()
		}
		return nil, &StatusError{Status: resp.StatusCode, Message: msg}
	}
	return data, nil
}
