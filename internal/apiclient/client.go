// Package apiclient is the HTTP JSON client for the private API that backs
// the voice gateway: phone-number config lookup, call records, transcripts,
// events, contacts and callbacks. All endpoints are treated as fallible
// remote calls; callers decide whether a failure is fatal.
package apiclient

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

	"github.com/google/uuid"

	"github.com/binaryelements/becaller/pkg/logging"
)

const defaultBaseURL = "http://private-api:3000"

// ErrNotFound is returned when the API answers 404 for a lookup.
var ErrNotFound = errors.New("apiclient: not found")

// Config controls how the Client behaves.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client wraps the private API endpoints used by the call flow.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// New creates a configured Client with sane defaults.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetPhoneNumberConfig looks up tenant configuration for a dialed number.
func (c *Client) GetPhoneNumberConfig(ctx context.Context, phoneNumber string) (*PhoneConfig, error) {
	var out PhoneConfig
	err := c.do(ctx, http.MethodGet, "/api/phone-numbers/lookup/"+url.PathEscape(phoneNumber), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCall creates a call record at answer time.
func (c *Client) CreateCall(ctx context.Context, data CallCreate) (*Call, error) {
	var out Call
	if err := c.do(ctx, http.MethodPost, "/api/calls", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCall applies a partial update to a call record keyed by call SID.
func (c *Client) UpdateCall(ctx context.Context, callSID string, data CallUpdate) error {
	return c.do(ctx, http.MethodPatch, "/api/calls/"+url.PathEscape(callSID), data, nil)
}

// AddTranscripts appends transcript turns to a call.
func (c *Client) AddTranscripts(ctx context.Context, callSID string, turns []TranscriptTurn) error {
	body := map[string]any{
		"callSid":     callSID,
		"transcripts": turns,
	}
	return c.do(ctx, http.MethodPost, "/api/calls/transcripts", body, nil)
}

// AddEvent appends a call event (engine event types and payloads).
func (c *Client) AddEvent(ctx context.Context, callSID, eventType string, eventData any) error {
	body := map[string]any{
		"callSid":   callSID,
		"eventType": eventType,
		"eventData": eventData,
	}
	return c.do(ctx, http.MethodPost, "/api/calls/events", body, nil)
}

// CreateCallback persists a callback request and returns its reference id.
func (c *Client) CreateCallback(ctx context.Context, data CallbackCreate) (*Callback, error) {
	var out Callback
	if err := c.do(ctx, http.MethodPost, "/api/callbacks", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchContacts queries the contact index scoped to a company.
func (c *Client) SearchContacts(ctx context.Context, companyID int, params ContactSearch) ([]Contact, error) {
	q := url.Values{}
	q.Set("companyId", fmt.Sprintf("%d", companyID))
	if params.Query != "" {
		q.Set("query", params.Query)
	}
	if params.Name != "" {
		q.Set("name", params.Name)
	}
	if params.PhoneNumber != "" {
		q.Set("phoneNumber", params.PhoneNumber)
	}
	if params.Email != "" {
		q.Set("email", params.Email)
	}
	var out []Contact
	if err := c.do(ctx, http.MethodGet, "/api/contacts/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetContactByPhone finds a contact by caller number within a company.
func (c *Client) GetContactByPhone(ctx context.Context, companyID int, phoneNumber string) (*Contact, error) {
	path := fmt.Sprintf("/api/contacts/lookup/%s?companyId=%d", url.PathEscape(phoneNumber), companyID)
	var out Contact
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrUpdateContact upserts a contact record.
func (c *Client) CreateOrUpdateContact(ctx context.Context, data ContactUpsert) (*Contact, error) {
	var out Contact
	if err := c.do(ctx, http.MethodPost, "/api/contacts", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCallWithContact links a contact to a call and stores collected data.
func (c *Client) UpdateCallWithContact(ctx context.Context, callSID string, contactID int, collectedData map[string]any) error {
	return c.UpdateCall(ctx, callSID, CallUpdate{
		ContactID:     contactID,
		CollectedData: collectedData,
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("apiclient: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("apiclient: %s %s: %s", method, path, apiError(resp.Body, resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode %s %s: %w", method, path, err)
	}
	return nil
}

// apiError extracts the API's {"error": "..."} message when present.
func apiError(body io.Reader, status int) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Sprintf("status %d: %s", status, payload.Error)
	}
	return fmt.Sprintf("status %d", status)
}
