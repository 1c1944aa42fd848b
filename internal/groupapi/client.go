// Package groupapi is the REST client for the external group service. The
// session engine treats every call here as an opaque request/response; the
// only call with engine-side fallback behavior is DeleteMessage, handled by
// the session controller.
package groupapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ajoshi-dev/huddle/internal/chat"
	"go.uber.org/zap"
)

// Sentinel errors surfaced verbatim to callers for user display.
var (
	ErrNameTaken = errors.New("group name already taken")
	ErrNotFound  = errors.New("group not found")
	ErrNotAdmin  = errors.New("only the group admin may do that")
)

// Client talks to the group service over HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// New creates a client for the given base URL (e.g. http://host:8080/api).
func New(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// Login registers or resumes the given username.
func (c *Client) Login(ctx context.Context, username string) error {
	q := url.Values{"username": {username}}
	return c.do(ctx, http.MethodPost, "/login", q, nil)
}

// Create creates a group owned by createdBy that expires after the given
// number of minutes. A name collision returns ErrNameTaken.
func (c *Client) Create(ctx context.Context, group, createdBy string, expiresInMinutes int) (chat.Group, error) {
	q := url.Values{
		"groupName":        {group},
		"createdBy":        {createdBy},
		"expiresInMinutes": {strconv.Itoa(expiresInMinutes)},
	}
	var g chat.Group
	err := c.do(ctx, http.MethodPost, "/group", q, &g)
	return g, err
}

// Join adds user to the group's member list and returns the group.
func (c *Client) Join(ctx context.Context, group, user string) (chat.Group, error) {
	q := url.Values{"username": {user}}
	var g chat.Group
	err := c.do(ctx, http.MethodPost, "/group/"+url.PathEscape(group)+"/join", q, &g)
	return g, err
}

// Leave removes user from the group's member list.
func (c *Client) Leave(ctx context.Context, group, user string) error {
	q := url.Values{"username": {user}}
	return c.do(ctx, http.MethodPost, "/group/"+url.PathEscape(group)+"/leave", q, nil)
}

// Metadata fetches the group read model. Any failure surfaces as ErrNotFound;
// callers display a sentinel value instead of blocking the session.
func (c *Client) Metadata(ctx context.Context, group string) (chat.Group, error) {
	var g chat.Group
	if err := c.do(ctx, http.MethodGet, "/group/"+url.PathEscape(group), nil, &g); err != nil {
		return chat.Group{}, ErrNotFound
	}
	return g, nil
}

// ListGroups returns the non-expired groups the user belongs to.
func (c *Client) ListGroups(ctx context.Context, user string) ([]chat.Group, error) {
	q := url.Values{"username": {user}}
	var groups []chat.Group
	err := c.do(ctx, http.MethodGet, "/groups", q, &groups)
	return groups, err
}

// RemoveMember removes target from the group on behalf of requester.
func (c *Client) RemoveMember(ctx context.Context, group, requester, target string) error {
	q := url.Values{"requester": {requester}, "target": {target}}
	return c.do(ctx, http.MethodDelete, "/group/"+url.PathEscape(group)+"/remove", q, nil)
}

// DeleteGroup deletes the group. Only the creator may; others get ErrNotAdmin.
func (c *Client) DeleteGroup(ctx context.Context, group, user string) error {
	q := url.Values{"username": {user}}
	return c.do(ctx, http.MethodDelete, "/group/"+url.PathEscape(group), q, nil)
}

// UpdateSettings renames the group and/or extends its expiry. Zero values
// leave the respective setting unchanged. Returns the updated group.
func (c *Client) UpdateSettings(ctx context.Context, group, user, newName string, extendMinutes int) (chat.Group, error) {
	q := url.Values{"username": {user}}
	if newName != "" {
		q.Set("groupName", newName)
	}
	if extendMinutes > 0 {
		q.Set("extendMinutes", strconv.Itoa(extendMinutes))
	}
	var g chat.Group
	err := c.do(ctx, http.MethodPatch, "/group/"+url.PathEscape(group), q, &g)
	return g, err
}

// CheckName reports whether a group name is still available.
func (c *Client) CheckName(ctx context.Context, group string) (bool, error) {
	var out struct {
		Available bool `json:"available"`
	}
	if err := c.do(ctx, http.MethodGet, "/group/"+url.PathEscape(group)+"/available", nil, &out); err != nil {
		return false, err
	}
	return out.Available, nil
}

// DeleteMessage asks the server to delete a persisted message. On success the
// server broadcasts a DELETE event on the group channel; the caller takes no
// local action. The engine's optimistic fallback on failure lives in the
// session controller, not here.
func (c *Client) DeleteMessage(ctx context.Context, id int64, group, user string) error {
	q := url.Values{"groupName": {group}, "username": {user}}
	return c.do(ctx, http.MethodDelete, "/messages/"+strconv.FormatInt(id, 10), q, nil)
}

// do issues a request with the query string attached and decodes a JSON body
// into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp.StatusCode); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusConflict:
		return ErrNameTaken
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrNotAdmin
	default:
		return fmt.Errorf("group service returned %d", code)
	}
}
