// Package wordpress is the publish-target client: a thin REST v2 client
// authenticated with an application password.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/35services/slack-2-wordpress/internal/errors"
)

// Post identifies a published document on the target site.
type Post struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Client talks to one WordPress site.
type Client struct {
	baseURL     string
	username    string
	appPassword string
	httpClient  *http.Client
}

// NewClient creates a Client for the site at baseURL (scheme + host, no
// trailing path).
func NewClient(baseURL, username, appPassword string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		username:    username,
		appPassword: appPassword,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// postPayload is the request body for create/update.
type postPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

// postResponse is the shape the posts endpoint returns.
type postResponse struct {
	ID    int    `json:"id"`
	Link  string `json:"link"`
	Title struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
}

// apiError is the shape WordPress returns for REST failures.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validate probes the authenticated user and distinguishes bad credentials
// from an account that lacks the role to publish posts.
func (c *Client) Validate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/wp-json/wp/v2/users/me?context=edit", nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	req.SetBasicAuth(c.username, c.appPassword)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("probe wordpress: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.NewAuthFailed("wordpress")
	case resp.StatusCode == http.StatusForbidden:
		return errors.NewPermissionDenied("wordpress", "user cannot read its own profile")
	case resp.StatusCode != http.StatusOK:
		return errors.NewInternal(fmt.Errorf("wordpress probe returned status %d", resp.StatusCode))
	}

	var me struct {
		Capabilities map[string]bool `json:"capabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return errors.NewInternal(fmt.Errorf("decode wordpress probe: %w", err))
	}
	if len(me.Capabilities) > 0 && !me.Capabilities["publish_posts"] {
		return errors.NewPermissionDenied("wordpress", "account lacks the publish_posts capability")
	}

	return nil
}

// CreateDocument publishes a new post. The markdown body is converted to HTML
// before posting.
func (c *Client) CreateDocument(ctx context.Context, title, markdown string) (Post, error) {
	return c.writePost(ctx, c.baseURL+"/wp-json/wp/v2/posts", title, markdown)
}

// UpdateDocument replaces the content of an existing post in place. The post
// id never changes.
func (c *Client) UpdateDocument(ctx context.Context, id int, title, markdown string) (Post, error) {
	return c.writePost(ctx, fmt.Sprintf("%s/wp-json/wp/v2/posts/%d", c.baseURL, id), title, markdown)
}

func (c *Client) writePost(ctx context.Context, url, title, markdown string) (Post, error) {
	payload := postPayload{
		Title:   title,
		Content: RenderHTML(markdown),
		Status:  "publish",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Post{}, errors.NewInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Post{}, errors.NewInternal(err)
	}
	req.SetBasicAuth(c.username, c.appPassword)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Post{}, errors.NewInternal(fmt.Errorf("post to wordpress: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Post{}, c.statusError(resp)
	}

	var pr postResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return Post{}, errors.NewInternal(fmt.Errorf("decode wordpress response: %w", err))
	}

	return Post{ID: pr.ID, Title: pr.Title.Rendered, Link: pr.Link}, nil
}

// statusError maps a non-2xx response to a structured error.
func (c *Client) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ae apiError
	_ = json.Unmarshal(raw, &ae)

	detail := ae.Message
	if detail == "" {
		detail = strings.TrimSpace(string(raw))
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return errors.NewAuthFailed("wordpress")
	case http.StatusForbidden:
		return errors.NewPermissionDenied("wordpress", detail)
	case http.StatusNotFound:
		return errors.NewNotFound(fmt.Sprintf("wordpress post (%s)", detail))
	default:
		return errors.NewInternal(fmt.Errorf("wordpress returned status %d: %s", resp.StatusCode, detail))
	}
}
