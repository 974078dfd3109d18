// Package alerts delivers the outbound celebration webhooks: deal-won and
// rank-milestone notifications posted to configurable automation URLs
// (Zapier, n8n, anything that takes JSON). Delivery is best-effort; a
// failed alert is logged and forgotten, never retried, and never affects
// the scoring that triggered it.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sales_enforcer_backend/platform/config"
)

type Client struct {
	wonURL       string
	milestoneURL string
	httpClient   *http.Client
}

func NewClient(cfg config.AlertConfig) *Client {
	return &Client{
		wonURL:       cfg.GetAlertDealWonURL(),
		milestoneURL: cfg.GetAlertMilestoneURL(),
		httpClient:   &http.Client{Timeout: 5 * time.Second},
	}
}

// NotifyDealWon posts the celebration payload. A blank configured URL is
// a silent no-op so environments without automation just skip it.
func (c *Client) NotifyDealWon(ctx context.Context, dealTitle string, dealValue float64, repName string) error {
	if c.wonURL == "" {
		return nil
	}
	return c.post(ctx, c.wonURL, map[string]any{
		"deal_name":  dealTitle,
		"deal_value": dealValue,
		"rep_name":   repName,
	})
}

// NotifyMilestone posts the rank-milestone payload.
func (c *Client) NotifyMilestone(ctx context.Context, repName, rank string, score int) error {
	if c.milestoneURL == "" {
		return nil
	}
	return c.post(ctx, c.milestoneURL, map[string]any{
		"rep_name": repName,
		"rank":     rank,
		"score":    score,
	})
}

func (c *Client) post(ctx context.Context, url string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}
