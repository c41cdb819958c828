package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rentdesk/internal/config"

	"github.com/rs/zerolog"
)

var (
	ErrUnavailable     = errors.New("payment provider unavailable")
	ErrInvalidResponse = errors.New("invalid payment provider response")
)

// Payment statuses reported by the provider.
const (
	StatusSucceeded = "succeeded"
	StatusPending   = "pending"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

type paymentResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Client confirms external payment references against the provider's HTTP API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollAttempts int
	pollInterval time.Duration
	logger       *zerolog.Logger
}

func NewClient(cfg config.PaymentConfig, logger *zerolog.Logger) *Client {
	attempts := cfg.PollAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		pollAttempts: attempts,
		pollInterval: cfg.PollInterval,
		logger:       logger,
	}
}

// ConfirmExternalPayment reports whether ref is a settled payment. A pending
// payment is polled a bounded number of times and then reported as unconfirmed.
func (c *Client) ConfirmExternalPayment(ctx context.Context, ref string) (bool, error) {
	if ref == "" {
		return false, nil
	}

	for attempt := 1; ; attempt++ {
		status, err := c.getStatus(ctx, ref)
		if err != nil {
			return false, err
		}

		switch status {
		case StatusSucceeded:
			return true, nil
		case StatusPending:
			if attempt >= c.pollAttempts {
				c.logger.Info().Str("payment_ref", ref).Int("attempts", attempt).Msg("payment still pending")
				return false, nil
			}
		default:
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) getStatus(ctx context.Context, ref string) (string, error) {
	endpoint := fmt.Sprintf("%s/payments/%s", c.baseURL, url.PathEscape(ref))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to execute request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return StatusFailed, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", fmt.Errorf("%w: status code %d", ErrUnavailable, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: unexpected status code %d: %s", ErrInvalidResponse, resp.StatusCode, string(body))
	}

	var payload paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrInvalidResponse, err)
	}
	return payload.Status, nil
}
