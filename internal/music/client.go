// Package music is the client for the external track search API used when
// attaching songs to stories.
package music

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"gamelysync/internal/entity"
)

// DefaultBaseURL is the DistroKid-style search endpoint root.
const DefaultBaseURL = "https://api.distrokid.com/v1/music"

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type searchResponse struct {
	Tracks []struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		ArtistName string `json:"artist_name"`
		PreviewURL string `json:"preview_url"`
	} `json:"tracks"`
}

// Search returns tracks matching the query, empty when nothing matches.
func (c *Client) Search(ctx context.Context, query string) ([]entity.Track, error) {
	u := fmt.Sprintf("%s/search?query=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("music search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("music search: status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("music search: bad response: %w", err)
	}
	tracks := make([]entity.Track, 0, len(parsed.Tracks))
	for _, t := range parsed.Tracks {
		tracks = append(tracks, entity.Track{
			ID:         t.ID,
			Name:       t.Title,
			Artist:     t.ArtistName,
			PreviewURL: t.PreviewURL,
		})
	}
	return tracks, nil
}
