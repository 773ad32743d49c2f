package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tuckborough/haven/internal/membership"
	"github.com/tuckborough/haven/internal/model"
)

var (
	// ErrNotFound means the server has no such resource.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the server already holds a resource with the same
	// client-assigned id. For a replayed CREATE this is success: the earlier
	// attempt landed and only its acknowledgment was lost.
	ErrConflict = errors.New("conflict")
)

// APIError is a non-2xx response that is not a plain not-found or conflict.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether a sync failure is transient. Definitive server
// rejections never become retryable: replaying them without a state change
// would fail identically.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout:
			return true
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return true
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}
	// No definitive server answer: network error, timeout, cancellation.
	return true
}

// Version is a server copy of a resource plus its last-modified time, used
// to detect conflicts against queued updates.
type Version struct {
	Fields    map[string]any
	UpdatedAt time.Time
}

// Client speaks the server's JSON API on behalf of one device.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func collectionPath(entity string) (string, error) {
	switch entity {
	case EntityStatus, EntityHelpRequest:
		return "/api/" + entity, nil
	default:
		return "", fmt.Errorf("entity %q has no create endpoint", entity)
	}
}

func resourcePath(entity, id string) (string, error) {
	switch entity {
	case EntityStatus, EntityHelpRequest:
		return "/api/" + entity + "/" + id, nil
	case EntityHousehold:
		return "/api/households/" + id, nil
	case EntityProfile:
		return "/api/households/" + id + "/profile", nil
	default:
		return "", fmt.Errorf("unknown entity %q", entity)
	}
}

// Fetch reads the current server version of a resource.
func (c *Client) Fetch(ctx context.Context, entity, id string) (*Version, error) {
	path, err := resourcePath(entity, id)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := c.do(ctx, http.MethodGet, path, nil, &fields); err != nil {
		return nil, err
	}

	v := &Version{Fields: fields}
	if s, ok := fields["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			v.UpdatedAt = t
		}
	}
	return v, nil
}

// Create posts a new resource. The payload carries the client-assigned id;
// a conflict response means it already exists.
func (c *Client) Create(ctx context.Context, entity string, payload map[string]any) error {
	path, err := collectionPath(entity)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, payload, nil)
}

// Update replaces a resource's editable fields.
func (c *Client) Update(ctx context.Context, entity, id string, payload map[string]any) error {
	path, err := resourcePath(entity, id)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, path, payload, nil)
}

// Delete removes a resource. Deleting an already-deleted resource returns
// ErrNotFound, which callers treat as done.
func (c *Client) Delete(ctx context.Context, entity, id string) error {
	path, err := resourcePath(entity, id)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Me is the caller's identity and household memberships.
type Me struct {
	User        model.User         `json:"user"`
	Memberships []model.Membership `json:"memberships"`
}

func (c *Client) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// RedeemInvitation joins the household behind a join code.
func (c *Client) RedeemInvitation(ctx context.Context, code string) (*model.Membership, error) {
	var m model.Membership
	body := map[string]string{"code": code}
	if err := c.do(ctx, http.MethodPost, "/api/invitations/redeem", body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// TransferOwnership hands the household to another member.
func (c *Client) TransferOwnership(ctx context.Context, householdID, toUserID int64) error {
	path := fmt.Sprintf("/api/households/%d/transfer", householdID)
	body := map[string]int64{"to_user_id": toUserID}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// LeaveHousehold leaves a household, or the caller's only household when
// householdID is nil.
func (c *Client) LeaveHousehold(ctx context.Context, householdID *int64) (*membership.LeaveResult, error) {
	body := map[string]any{}
	if householdID != nil {
		body["household_id"] = *householdID
	}
	var result membership.LeaveResult
	if err := c.do(ctx, http.MethodPost, "/api/households/leave", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)

		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, body.Error)
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrConflict, body.Error)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error, Code: body.Code}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
