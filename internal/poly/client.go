package poly

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/polyfetch/internal/fetch"
	"github.com/tanq16/polyfetch/internal/utils"
)

const DefaultBaseURL = "https://poly.googleapis.com"
const DefaultFormat = "OBJ"

var assetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://poly\.google\.com/view/([A-Za-z0-9_-]+)/?$`),
	regexp.MustCompile(`^assets/([A-Za-z0-9_-]+)/?$`),
	regexp.MustCompile(`^([A-Za-z0-9_-]+)$`),
}

type Client struct {
	baseURL string
	apiKey  string
	client  utils.HTTPDoer
}

func NewClient(baseURL, apiKey string, client utils.HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// ParseAssetID accepts a bare id, an "assets/<id>" name or a viewer URL.
func ParseAssetID(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, pattern := range assetPatterns {
		if m := pattern.FindStringSubmatch(s); len(m) == 2 {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("invalid asset reference: %s", s)
}

// GetAsset fetches the metadata of one asset.
func (c *Client) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	apiURL := fmt.Sprintf("%s/v1/assets/%s/", c.baseURL, url.PathEscape(assetID))
	if c.apiKey != "" {
		apiURL += "?key=" + url.QueryEscape(c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating API request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making API request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &fetch.StatusError{URL: fmt.Sprintf("%s/v1/assets/%s/", c.baseURL, assetID), StatusCode: resp.StatusCode}
	}

	var asset Asset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return nil, fmt.Errorf("error decoding API response: %w", err)
	}
	log.Debug().Str("op", "poly/client").Msgf("Asset %s has %d formats", asset.Name, len(asset.Formats))
	return &asset, nil
}

// FileURL builds the download URL for a file path served by the API host.
// The API key rides along like on every other request to that host.
func (c *Client) FileURL(filePath string) string {
	fileURL := c.baseURL + "/" + strings.TrimPrefix(filePath, "/")
	if c.apiKey != "" {
		fileURL += "?key=" + url.QueryEscape(c.apiKey)
	}
	return fileURL
}

// ResolveFiles lists what to download for a format. Files without an
// absolute URL are served from the API host.
func (c *Client) ResolveFiles(format *Format) []Download {
	var out []Download
	for _, f := range format.Files() {
		link := f.URL
		if link == "" {
			link = c.FileURL(f.RelativePath)
		}
		out = append(out, Download{Name: f.RelativePath, URL: link})
	}
	return out
}
