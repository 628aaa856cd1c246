package qstash

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
)

type Config struct {
	URL               string        `split_words:"true" required:"true"`
	Token             string        `split_words:"true" required:"true"`
	CurrentSigningKey string        `split_words:"true" required:"true"`
	NextSigningKey    string        `split_words:"true" required:"true"`
	Timeout           time.Duration `split_words:"true" default:"10s"`
}

type Client struct {
	baseURL           string
	token             string
	currentSigningKey string
	nextSigningKey    string
	httpClient        *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		token:             strings.TrimSpace(cfg.Token),
		currentSigningKey: strings.TrimSpace(cfg.CurrentSigningKey),
		nextSigningKey:    strings.TrimSpace(cfg.NextSigningKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Publish enqueues a JSON message for delivery to destination. destination
// is the downstream consumer URL QStash will call.
func (c *Client) Publish(ctx context.Context, destination string, payload any) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return errors.New("qstash destination is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("qstash: marshal payload: %w", err)
	}

	endpoint := c.baseURL + "/v2/publish/" + destination
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qstash: publish status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
