package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/provenance-labs/provd/pkg/config"
)

// post is one upstream item with analyzable text.
type post struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type postsPage struct {
	Data []post `json:"data"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

type userLookup struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
}

// apiClient is a minimal paging client for the upstream social API.
type apiClient struct {
	baseURL  string
	token    string
	pageSize int
	http     *http.Client
}

func newAPIClient(cfg *config.IntelConfig) *apiClient {
	var token string
	if cfg.BearerTokenEnv != "" {
		token = os.Getenv(cfg.BearerTokenEnv)
	}
	return &apiClient{
		baseURL:  cfg.APIBaseURL,
		token:    token,
		pageSize: cfg.PageSize,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// lookupUser resolves a handle to the upstream user id. Costs one request.
func (c *apiClient) lookupUser(ctx context.Context, handle string) (string, error) {
	var out userLookup
	path := fmt.Sprintf("/2/users/by/username/%s", url.PathEscape(handle))
	if err := c.get(ctx, path, nil, &out); err != nil {
		return "", fmt.Errorf("failed to resolve handle %s: %w", handle, err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("handle %s not found upstream", handle)
	}
	return out.Data.ID, nil
}

// pagedPosts walks a paged collection endpoint until maxItems, maxPages,
// or the end of results. It returns the items and the number of requests
// actually spent.
func (c *apiClient) pagedPosts(ctx context.Context, path string, since time.Time, maxItems, maxPages int) ([]post, int, error) {
	var items []post
	requests := 0
	token := ""
	for page := 0; page < maxPages && len(items) < maxItems; page++ {
		params := url.Values{}
		params.Set("max_results", fmt.Sprintf("%d", c.pageSize))
		params.Set("start_time", since.UTC().Format(time.RFC3339))
		if token != "" {
			params.Set("pagination_token", token)
		}

		var out postsPage
		requests++
		if err := c.get(ctx, path, params, &out); err != nil {
			return items, requests, err
		}
		items = append(items, out.Data...)
		token = out.Meta.NextToken
		if token == "" || len(out.Data) == 0 {
			break
		}
	}
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, requests, nil
}

func (c *apiClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read upstream response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return nil
}
