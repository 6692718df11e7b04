package shortlink

import (
	"adtel/internal/config"
	"adtel/internal/observability"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrShortenFailed = errors.New("short link service rejected the request")

// ShortenRequest represents the payload of the shorten call.
type ShortenRequest struct {
	Title       string `json:"title"`
	DestURL     string `json:"dest_url"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
}

// ShortenResponse represents the minted short link.
type ShortenResponse struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
}

// Stats represents the hit counters of one short link.
type Stats struct {
	HitCount int64 `json:"hit_count"`
	IPCount  int64 `json:"ip_count"`
}

// Client talks to the external short-link service.
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
	logger     *observability.Logger
	maxRetries uint64
}

// NewClient creates a new short-link client.
func NewClient(cfg config.ShortLinkConfig, logger *observability.Logger) *Client {
	return &Client{
		apiURL: cfg.APIURL,
		token:  cfg.Token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:     logger,
		maxRetries: 10,
	}
}

// Shorten mints a tracked short link for a destination URL, retrying with
// exponential backoff. Callers treat a final failure as per-link degradation
// and keep the original long link.
func (c *Client) Shorten(ctx context.Context, params ShortenRequest) (ShortenResponse, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "dest_url", Value: params.DestURL},
	)

	payload, err := json.Marshal(params)
	if err != nil {
		return ShortenResponse{}, fmt.Errorf("failed to marshal shorten request: %w", err)
	}

	var result ShortenResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/shorten", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create shorten request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("shorten request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("shorten request failed with status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrShortenFailed, resp.StatusCode))
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode shorten response: %w", err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		c.logger.Error(ctx, "failed to mint short link", err)
		return ShortenResponse{}, err
	}
	return result, nil
}

// GetStats fetches the hit counters of a minted short link.
func (c *Client) GetStats(ctx context.Context, externalID string) (Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/shorten/"+externalID, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to create stats request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, "failed to fetch short link stats", err)
		return Stats{}, fmt.Errorf("stats request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Stats{}, fmt.Errorf("stats request failed with status %d", resp.StatusCode)
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return Stats{}, fmt.Errorf("failed to decode stats response: %w", err)
	}
	return stats, nil
}
