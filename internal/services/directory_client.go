package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DirectoryClient resolves display names from the chat platform's user
// directory.
type DirectoryClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewDirectoryClient(baseURL, apiKey string) *DirectoryClient {
	return &DirectoryClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type directoryUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *DirectoryClient) ResolveName(ctx context.Context, accountID string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("directory base url is empty")
	}

	endpoint := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(accountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request to directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNameNotFound
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("directory returned error status %d", resp.StatusCode)
	}

	var user directoryUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return user.Name, nil
}
