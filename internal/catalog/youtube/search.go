// Package youtube searches the YouTube Data API v3 for videos.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/paging"
	"github.com/tanq16/vidgrab/internal/utils"
)

const DefaultAPIURL = "https://www.googleapis.com/youtube/v3"

var (
	watchURLRegex = regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|shorts/|embed/|live/)|youtu\.be/)([A-Za-z0-9_-]{11})`)
	videoIDRegex  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

type Video struct {
	ID           string
	Title        string
	Description  string
	ChannelTitle string
	PublishedAt  time.Time
	Thumbnail    string
}

func (v Video) URL() string {
	return WatchURL(v.ID)
}

func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// ExtractVideoID accepts a bare 11 character ID or any common YouTube link form.
func ExtractVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if videoIDRegex.MatchString(input) {
		return input, nil
	}
	if matches := watchURLRegex.FindStringSubmatch(input); len(matches) > 1 {
		return matches[1], nil
	}
	return "", fmt.Errorf("unable to extract video ID from %q", input)
}

// Client is a paging.Fetcher over search.list. credential is either an API
// key or an OAuth access token.
type Client struct {
	http       utils.HTTPDoer
	credential string
	baseURL    string
}

func NewClient(doer utils.HTTPDoer, credential string) *Client {
	return &Client{http: doer, credential: credential, baseURL: DefaultAPIURL}
}

// WithBaseURL points the client at another API root.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

func (c *Client) isAPIKey() bool {
	return strings.HasPrefix(c.credential, "AIza")
}

type searchResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			Kind    string `json:"kind"`
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string    `json:"title"`
			Description  string    `json:"description"`
			ChannelTitle string    `json:"channelTitle"`
			PublishedAt  time.Time `json:"publishedAt"`
			Thumbnails   map[string]struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

func (c *Client) Fetch(ctx context.Context, q paging.Query) (paging.Page[Video], error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", q.Criteria)
	params.Set("maxResults", strconv.Itoa(q.Size))
	if q.Token != "" {
		params.Set("pageToken", q.Token)
	}
	if c.isAPIKey() {
		params.Set("key", c.credential)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return paging.Page[Video]{}, fmt.Errorf("error creating search request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if !c.isAPIKey() && c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return paging.Page[Video]{}, fmt.Errorf("error executing search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return paging.Page[Video]{}, fmt.Errorf("search failed, status: %d", resp.StatusCode)
	}
	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return paging.Page[Video]{}, fmt.Errorf("error parsing search response: %v", err)
	}

	page := paging.Page[Video]{NextToken: result.NextPageToken}
	for _, item := range result.Items {
		if item.ID.Kind != "youtube#video" {
			continue
		}
		v := Video{
			ID:           item.ID.VideoID,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			ChannelTitle: item.Snippet.ChannelTitle,
			PublishedAt:  item.Snippet.PublishedAt,
		}
		for _, size := range []string{"high", "medium", "default"} {
			if thumb, ok := item.Snippet.Thumbnails[size]; ok {
				v.Thumbnail = thumb.URL
				break
			}
		}
		page.Items = append(page.Items, v)
	}
	log.Debug().Str("op", "youtube/search").Msgf("query %q returned %d videos (of %d items)", q.Criteria, len(page.Items), len(result.Items))
	return page, nil
}
