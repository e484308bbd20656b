package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lacrosse-relay/internal/types"
)

const (
	ingressPath       = "ingress"
	deviceTokenHeader = "x-device-token"
	maxErrorBody      = 4 << 10
)

type HTTPOptions struct {
	BaseURL     string
	DeviceToken string
	Timeout     time.Duration

	// Client overrides the default client; Timeout is ignored when set.
	Client *http.Client
}

// HTTPPublisher posts readings to the ingestion API. Only 202 Accepted counts
// as success.
type HTTPPublisher struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPPublisher(opts HTTPOptions, logger *slog.Logger) (*HTTPPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DeviceToken == "" {
		return nil, fmt.Errorf("device token is required")
	}
	base := strings.TrimSpace(opts.BaseURL)
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api base url %q: scheme must be http or https", base)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &HTTPPublisher{
		url:    base + ingressPath,
		token:  opts.DeviceToken,
		client: client,
		logger: logger,
	}, nil
}

// URL returns the ingress endpoint.
func (p *HTTPPublisher) URL() string { return p.url }

func (p *HTTPPublisher) Publish(ctx context.Context, r types.Reading) error {
	body, err := Encode(r)
	if err != nil {
		return err
	}

	p.logger.Info("publishing reading", "url", p.url, "location", r.Location, "payload", string(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(deviceTokenHeader, p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return transportError("http", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			p.logger.Warn("close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusAccepted {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &PublishError{
			Sink:       "http",
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(detail)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	p.logger.Info("published reading", "location", r.Location, "status", resp.StatusCode)
	return nil
}

// Close releases idle connections.
func (p *HTTPPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
