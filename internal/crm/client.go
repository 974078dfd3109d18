package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"sales_enforcer_backend/platform/apperr"
	"sales_enforcer_backend/platform/config"

	"golang.org/x/time/rate"
)

// Client talks to the CRM REST API. Calls are synchronous, time-bounded by
// the configured HTTP timeout, and rate limited against the CRM's API
// budget. There is no retry here: a failed call aborts the caller's unit
// of work and redelivery is the caller's concern.
type Client struct {
	baseURL       string
	token         string
	staleFilterID int
	httpClient    *http.Client
	limiter       *rate.Limiter
}

// New creates a CRM client from configuration.
func New(cfg config.CRMConfig) *Client {
	rps := cfg.GetCRMRequestsPerSecond()
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL:       cfg.GetCRMBaseURL(),
		token:         cfg.GetCRMAPIToken(),
		staleFilterID: cfg.GetCRMStaleFilterID(),
		httpClient:    &http.Client{Timeout: cfg.GetCRMTimeout()},
		limiter:       rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// GetDeal fetches the full field snapshot for a deal.
func (c *Client) GetDeal(ctx context.Context, dealID int) (Snapshot, error) {
	var snapshot Snapshot
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/deals/%d", dealID), nil, nil, &snapshot)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, apperr.NotFound(fmt.Sprintf("deal %d not found", dealID))
	}
	return snapshot, nil
}

// GetUser fetches display info for a CRM user.
func (c *Client) GetUser(ctx context.Context, userID int) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", userID), nil, nil, &user); err != nil {
		return User{}, err
	}
	if user.ID == 0 {
		return User{}, apperr.NotFound(fmt.Sprintf("user %d not found", userID))
	}
	return user, nil
}

// UpdateDeal applies field changes to a deal (e.g., reverting its stage).
func (c *Client) UpdateDeal(ctx context.Context, dealID int, fields map[string]any) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/deals/%d", dealID), nil, fields, nil)
}

// AddNote attaches an HTML note to a deal. This is the channel through
// which compliance failures are explained to the deal owner.
func (c *Client) AddNote(ctx context.Context, dealID int, content string) error {
	body := map[string]any{"deal_id": dealID, "content": content}
	return c.do(ctx, http.MethodPost, "/notes", nil, body, nil)
}

// AddTask creates a follow-up task on a deal for its owner.
func (c *Client) AddTask(ctx context.Context, dealID, userID int, subject string) error {
	body := map[string]any{
		"deal_id": dealID,
		"user_id": userID,
		"subject": subject,
		"type":    "task",
	}
	return c.do(ctx, http.MethodPost, "/activities", nil, body, nil)
}

// ListStaleDeals fetches all deals the CRM currently flags as rotten,
// via the CRM-side saved filter.
func (c *Client) ListStaleDeals(ctx context.Context) ([]Snapshot, error) {
	params := url.Values{"filter_id": {strconv.Itoa(c.staleFilterID)}}
	var deals []Snapshot
	if err := c.do(ctx, http.MethodGet, "/deals", params, nil, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

// ListDealsParams filters a deal listing.
type ListDealsParams struct {
	Status       string
	PipelineID   int
	UserID       int
	AddTimeSince string // "2006-01-02 15:04:05"
}

// ListDeals fetches deals matching the given filters.
func (c *Client) ListDeals(ctx context.Context, p ListDealsParams) ([]Snapshot, error) {
	params := url.Values{}
	if p.Status != "" {
		params.Set("status", p.Status)
	}
	if p.PipelineID != 0 {
		params.Set("pipeline_id", strconv.Itoa(p.PipelineID))
	}
	if p.UserID != 0 {
		params.Set("user_id", strconv.Itoa(p.UserID))
	}
	if p.AddTimeSince != "" {
		params.Set("add_time_since", p.AddTimeSince)
	}

	var deals []Snapshot
	if err := c.do(ctx, http.MethodGet, "/deals", params, nil, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

// ListStages fetches the CRM's stage table (id to name) for reports.
func (c *Client) ListStages(ctx context.Context) ([]PipelineStage, error) {
	var stages []PipelineStage
	if err := c.do(ctx, http.MethodGet, "/stages", nil, nil, &stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// ListOpenActivities fetches all not-done activities, optionally scoped to
// one user.
func (c *Client) ListOpenActivities(ctx context.Context, userID int) ([]Activity, error) {
	params := url.Values{"done": {"0"}}
	if userID != 0 {
		params.Set("user_id", strconv.Itoa(userID))
	}
	var activities []Activity
	if err := c.do(ctx, http.MethodGet, "/activities", params, nil, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// ListDealActivities fetches all activities attached to one deal.
func (c *Client) ListDealActivities(ctx context.Context, dealID int) ([]Activity, error) {
	var activities []Activity
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/deals/%d/activities", dealID), nil, nil, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.token)

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("crm: marshal %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+params.Encode(), reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Upstream(fmt.Sprintf("crm %s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperr.NotFound(fmt.Sprintf("crm %s %s: not found", method, path))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return apperr.Upstream(
			fmt.Sprintf("crm %s %s: status %d: %s", method, path, resp.StatusCode, string(payload)),
			nil,
		)
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apperr.Upstream(fmt.Sprintf("crm %s %s: decode response", method, path), err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperr.Upstream(fmt.Sprintf("crm %s %s: decode data", method, path), err)
	}
	return nil
}
