package taskgatesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal TaskGate HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Provider is the partner application record.
type Provider struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	Domain                   string `json:"domain"`
	PackageNameAndroid       string `json:"package_name_android,omitempty"`
	PackageNameIOS           string `json:"package_name_ios,omitempty"`
	AppStoreID               string `json:"app_store_id,omitempty"`
	URLScheme                string `json:"url_scheme,omitempty"`
	IconPathLight            string `json:"icon_path_light,omitempty"`
	IconPathDark             string `json:"icon_path_dark,omitempty"`
	IconBackgroundColorLight string `json:"icon_background_color_light,omitempty"`
	IconBackgroundColorDark  string `json:"icon_background_color_dark,omitempty"`
	IconBackgroundImgLight   string `json:"icon_background_img_light,omitempty"`
	IconBackgroundImgDark    string `json:"icon_background_img_dark,omitempty"`
}

// Task is one gating task.
type Task struct {
	ID          string   `json:"id,omitempty"`
	ProviderID  string   `json:"provider_id,omitempty"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Type        string   `json:"type,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Platforms   []string `json:"platforms,omitempty"`
}

// Bundle is a provider with its tasks.
type Bundle struct {
	Provider  Provider `json:"provider"`
	Tasks     []Task   `json:"tasks,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

type Draft struct {
	Bundle  Bundle `json:"bundle"`
	Version int64  `json:"version"`
}

// Review is a submitted bundle with its approval state.
type Review struct {
	Bundle
	Status      string  `json:"status"`
	SubmittedAt string  `json:"submitted_at"`
	SubmittedBy string  `json:"submitted_by"`
	ApprovedAt  *string `json:"approved_at,omitempty"`
	ApprovedBy  *string `json:"approved_by,omitempty"`
	DeclinedAt  *string `json:"declined_at,omitempty"`
	DeclinedBy  *string `json:"declined_by,omitempty"`
}

type ReviewQueue struct {
	Pending  []Review `json:"pending"`
	Approved []Review `json:"approved"`
	Declined []Review `json:"declined"`
}

// Export is the compiled production configuration.
type Export struct {
	SchemaVersion  int        `json:"schema_version"`
	Providers      []Provider `json:"providers"`
	Tasks          []Task     `json:"tasks"`
	GeneratedAt    string     `json:"generated_at"`
	TotalProviders int        `json:"total_providers"`
	TotalTasks     int        `json:"total_tasks"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type Validation struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors"`
}

type Whoami struct {
	Email      string `json:"email"`
	IsAdmin    bool   `json:"is_admin"`
	ProviderID string `json:"provider_id,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// DevLogin mints a token through the dev login endpoint and keeps it on the client.
func (c *Client) DevLogin(ctx context.Context, email string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", nil, map[string]any{"email": email}, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) Me(ctx context.Context) (Whoami, error) {
	var resp Whoami
	err := c.do(ctx, http.MethodGet, "me", nil, nil, &resp)
	return resp, err
}

// GetDraft returns the provider's draft.
func (c *Client) GetDraft(ctx context.Context, providerID string) (Draft, error) {
	var resp Draft
	err := c.do(ctx, http.MethodGet, partnerPath(providerID, "draft"), nil, nil, &resp)
	return resp, err
}

// SaveDraft replaces the draft. A positive version is sent as If-Match.
func (c *Client) SaveDraft(ctx context.Context, providerID string, b Bundle, version int64) (Draft, error) {
	var headers map[string]string
	if version > 0 {
		headers = map[string]string{"If-Match": strconv.Quote(strconv.FormatInt(version, 10))}
	}
	var resp Draft
	err := c.do(ctx, http.MethodPut, partnerPath(providerID, "draft"), headers, b, &resp)
	return resp, err
}

// AutosaveDraft queues a debounced draft write.
func (c *Client) AutosaveDraft(ctx context.Context, providerID string, b Bundle) error {
	return c.do(ctx, http.MethodPut, partnerPath(providerID, "draft")+"?autosave=true", nil, b, nil)
}

func (c *Client) ValidateDraft(ctx context.Context, providerID string) (Validation, error) {
	var resp Validation
	err := c.do(ctx, http.MethodPost, partnerPath(providerID, "draft/validate"), nil, nil, &resp)
	return resp, err
}

// Submit sends b for review, or the stored draft when b is nil.
func (c *Client) Submit(ctx context.Context, providerID string, b *Bundle) (Review, error) {
	var body any
	if b != nil {
		body = b
	}
	var resp Review
	err := c.do(ctx, http.MethodPost, partnerPath(providerID, "submission"), nil, body, &resp)
	return resp, err
}

func (c *Client) Submission(ctx context.Context, providerID string) (Review, error) {
	var resp Review
	err := c.do(ctx, http.MethodGet, partnerPath(providerID, "submission"), nil, nil, &resp)
	return resp, err
}

func (c *Client) CancelSubmission(ctx context.Context, providerID string) error {
	return c.do(ctx, http.MethodDelete, partnerPath(providerID, "submission"), nil, nil, nil)
}

// Reviews returns the approval queue.
func (c *Client) Reviews(ctx context.Context) (ReviewQueue, error) {
	var resp ReviewQueue
	err := c.do(ctx, http.MethodGet, "reviews", nil, nil, &resp)
	return resp, err
}

func (c *Client) Approve(ctx context.Context, providerID string) (Review, error) {
	return c.transition(ctx, providerID, "approve")
}

func (c *Client) Decline(ctx context.Context, providerID string) (Review, error) {
	return c.transition(ctx, providerID, "decline")
}

func (c *Client) Reopen(ctx context.Context, providerID string) (Review, error) {
	return c.transition(ctx, providerID, "reopen")
}

func (c *Client) transition(ctx context.Context, providerID, action string) (Review, error) {
	var resp Review
	endpoint := fmt.Sprintf("reviews/%s/%s", url.PathEscape(providerID), action)
	err := c.do(ctx, http.MethodPost, endpoint, nil, nil, &resp)
	return resp, err
}

// Export compiles the production configuration.
func (c *Client) Export(ctx context.Context) (Export, error) {
	var resp Export
	err := c.do(ctx, http.MethodGet, "export", nil, nil, &resp)
	return resp, err
}

// Events returns recent audit events, optionally for one entity.
func (c *Client) Events(ctx context.Context, entityKind, entityID string, limit int) ([]Event, error) {
	q := url.Values{}
	if entityKind != "" {
		q.Set("entity_kind", entityKind)
	}
	if entityID != "" {
		q.Set("entity_id", entityID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &resp)
	return resp, err
}

func (c *Client) LinkPartner(ctx context.Context, email, providerID string) error {
	return c.do(ctx, http.MethodPost, "partner-accounts", nil, map[string]any{
		"email":       email,
		"provider_id": providerID,
	}, nil)
}

func (c *Client) CreateAPIKey(ctx context.Context, email, name string) (APIKey, error) {
	var resp APIKey
	err := c.do(ctx, http.MethodPost, "api-keys", nil, map[string]any{"email": email, "name": name}, &resp)
	return resp, err
}

func (c *Client) UnlinkPartner(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodDelete, "partner-accounts/"+url.PathEscape(email), nil, nil, nil)
}

// APIKeys lists key metadata; the plain key is never returned again.
func (c *Client) APIKeys(ctx context.Context, email string) ([]APIKey, error) {
	endpoint := "api-keys"
	if email != "" {
		endpoint += "?" + url.Values{"email": {email}}.Encode()
	}
	var resp []APIKey
	err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &resp)
	return resp, err
}

func (c *Client) RevokeAPIKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "api-keys/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, headers map[string]string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func partnerPath(providerID, p string) string {
	return fmt.Sprintf("partners/%s/%s", url.PathEscape(providerID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
