package partner

import (
	"adtel/internal/config"
	"adtel/internal/observability"
	"context"
	"fmt"
	"net/http"
	"time"
)

// Client notifies the partner CRM core about publisher changes. Calls are
// fire-and-forget: failures are logged and never block the caller.
type Client struct {
	coreAPIURL string
	httpClient *http.Client
	logger     *observability.Logger
}

// NewClient creates a new partner core client.
func NewClient(cfg config.PartnerConfig, logger *observability.Logger) *Client {
	return &Client{
		coreAPIURL: cfg.CoreAPIURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// TriggerPublisherUpdate asks the partner core to refresh its publisher
// roster. Errors are logged only.
func (c *Client) TriggerPublisherUpdate(ctx context.Context) {
	if c.coreAPIURL == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.coreAPIURL+"/publishers/refresh", nil)
	if err != nil {
		c.logger.Error(ctx, "failed to create publisher update request", err)
		return
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, "failed to trigger publisher update", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error(ctx, "publisher update returned unexpected status",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}
