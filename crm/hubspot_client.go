package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var ErrConflict = errors.New("contact already exists")

type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type Event struct {
	Name       string
	Email      string
	Properties map[string]string
	OccurredAt time.Time
}

// Client is the CRM surface the sync adapters use. Every method is a no-op
// returning nil values when the CRM is not configured.
type Client interface {
	SearchContactByEmail(ctx context.Context, email string) (*Contact, error)
	CreateContact(ctx context.Context, properties map[string]string) (*Contact, error)
	UpdateContact(ctx context.Context, id string, properties map[string]string) (*Contact, error)
	TrackEvent(ctx context.Context, event Event) error
}

// HubSpotClient calls the HubSpot CRM v3 REST API with a private app token.
type HubSpotClient struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewHubSpotClient throttles to HubSpot's private app limit of 10 requests per second.
func NewHubSpotClient(baseURL, token string) *HubSpotClient {
	return &HubSpotClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}
}

func (c *HubSpotClient) Enabled() bool {
	return c != nil && c.token != ""
}

type searchFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type filterGroup struct {
	Filters []searchFilter `json:"filters"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit"`
}

type searchResponse struct {
	Total   int       `json:"total"`
	Results []Contact `json:"results"`
}

type propertiesPayload struct {
	Properties map[string]string `json:"properties"`
}

type eventPayload struct {
	EventName  string            `json:"eventName"`
	Email      string            `json:"email"`
	OccurredAt string            `json:"occurredAt,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (c *HubSpotClient) SearchContactByEmail(ctx context.Context, email string) (*Contact, error) {
	if !c.Enabled() {
		return nil, nil
	}

	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []searchFilter{{PropertyName: "email", Operator: "EQ", Value: email}}}},
		Properties:   []string{"email", "firstname", "lastname", "lifecyclestage"},
		Limit:        1,
	}

	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", req, &resp); err != nil {
		return nil, fmt.Errorf("contact search failed: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

func (c *HubSpotClient) CreateContact(ctx context.Context, properties map[string]string) (*Contact, error) {
	if !c.Enabled() {
		return nil, nil
	}
	var contact Contact
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts", propertiesPayload{Properties: properties}, &contact); err != nil {
		return nil, fmt.Errorf("contact create failed: %w", err)
	}
	return &contact, nil
}

func (c *HubSpotClient) UpdateContact(ctx context.Context, id string, properties map[string]string) (*Contact, error) {
	if !c.Enabled() {
		return nil, nil
	}
	var contact Contact
	if err := c.do(ctx, http.MethodPatch, "/crm/v3/objects/contacts/"+id, propertiesPayload{Properties: properties}, &contact); err != nil {
		return nil, fmt.Errorf("contact update failed: %w", err)
	}
	return &contact, nil
}

func (c *HubSpotClient) TrackEvent(ctx context.Context, event Event) error {
	if !c.Enabled() {
		return nil
	}
	payload := eventPayload{EventName: event.Name, Email: event.Email, Properties: event.Properties}
	if !event.OccurredAt.IsZero() {
		payload.OccurredAt = event.OccurredAt.UTC().Format(time.RFC3339)
	}
	if err := c.do(ctx, http.MethodPost, "/events/v3/send", payload, nil); err != nil {
		return fmt.Errorf("event %s failed: %w", event.Name, err)
	}
	return nil
}

func (c *HubSpotClient) do(ctx context.Context, method, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		return ErrConflict
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("hubspot returned %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}
