// Package linkding talks to a Linkding bookmark server over its REST API
// and layers a short-lived read-through cache plus "random unseen
// bookmark" tracking on top of it.
package linkding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Client is a Linkding REST API client for a single server and token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the Linkding server at baseURL
// (e.g. "https://links.example.com"), authenticating with token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// CacheKey identifies this server and credential pair.
func (c *Client) CacheKey() string {
	return c.baseURL + "|" + c.token
}

// Bookmark is one saved link. Title and Description fall back to the
// scraped website metadata when the user left them blank.
type Bookmark struct {
	ID          int    `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DateAdded   string `json:"date_added"`
}

// Line renders the bookmark the way listings show it.
func (b Bookmark) Line() string {
	return fmt.Sprintf("* %d: %s %s", b.ID, b.Title, b.URL)
}

type bookmarkPayload struct {
	ID                 int    `json:"id"`
	URL                string `json:"url"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	WebsiteTitle       string `json:"website_title"`
	WebsiteDescription string `json:"website_description"`
	DateAdded          string `json:"date_added"`
}

type bookmarksResponse struct {
	Results []bookmarkPayload `json:"results"`
}

type profileResponse struct {
	Theme string `json:"theme"`
}

// CheckProfile validates the configured credentials by fetching the
// user profile. A non-200 response means the token or URL is wrong.
func (c *Client) CheckProfile(ctx context.Context) error {
	var resp profileResponse
	if err := c.get(ctx, "/api/user/profile/", &resp); err != nil {
		return fmt.Errorf("linkding credential check: %w", err)
	}
	return nil
}

// Bookmarks fetches the bookmark list from the server.
func (c *Client) Bookmarks(ctx context.Context) ([]Bookmark, error) {
	var resp bookmarksResponse
	if err := c.get(ctx, "/api/bookmarks/", &resp); err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}

	bookmarks := make([]Bookmark, 0, len(resp.Results))
	for _, b := range resp.Results {
		title := b.Title
		if title == "" {
			title = b.WebsiteTitle
		}
		description := b.Description
		if description == "" {
			description = b.WebsiteDescription
		}
		bookmarks = append(bookmarks, Bookmark{
			ID:          b.ID,
			URL:         b.URL,
			Title:       title,
			Description: description,
			DateAdded:   b.DateAdded,
		})
	}
	return bookmarks, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
