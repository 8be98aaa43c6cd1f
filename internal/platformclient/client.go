// Package platformclient wraps the external video platform's REST surface
// (component D): list_channel_videos, list_video_comments, post_reply. All
// calls funnel through a single request routine that attaches the current
// credential, retries once on 401 after a refresh, and retries transient
// 5xx/429 responses with exponential backoff.
package platformclient

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

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/autoreplyd/engine/internal/domain"
)

const pageSpacer = 200 * time.Millisecond

// Client implements domain.PlatformClient against a YouTube-Data-API-shaped
// REST surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	credential domain.CredentialHolder
	timeout    time.Duration
}

// New constructs a Client. httpClient, if nil, defaults to an
// otelhttp-wrapped client with the given timeout.
func New(baseURL string, credentialHolder domain.CredentialHolder, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, credential: credentialHolder, timeout: timeout}
}

// request performs one authenticated call, refreshing the credential and
// retrying exactly once on a 401, and retrying transient 5xx/429 responses
// with exponential backoff (spec.md §4.D).
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("op=platformclient.request.marshal: %w", err)
		}
		bodyBytes = b
	}

	refreshed := false
	var result []byte

	op := func() error {
		access, _ := c.credential.Current()
		q := query
		if q == nil {
			q = url.Values{}
		}
		q.Set("access_token", access)

		reqURL := c.baseURL + path + "?" + q.Encode()
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("op=platformclient.request.build: %w", err))
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("op=platformclient.request.do: %w", err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			if refreshed {
				return backoff.Permanent(fmt.Errorf("op=platformclient.request: %w", domain.ErrUnauthorized))
			}
			refreshed = true
			if _, _, err := c.credential.Refresh(ctx); err != nil {
				return backoff.Permanent(fmt.Errorf("op=platformclient.request.refresh: %w", err))
			}
			return fmt.Errorf("op=platformclient.request: retrying after credential refresh")
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("op=platformclient.request: %w", domain.ErrRateLimited)
		case resp.StatusCode >= 500:
			return fmt.Errorf("op=platformclient.request: %w", &domain.PlatformError{Status: resp.StatusCode, Body: string(respBody)})
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("op=platformclient.request: %w", &domain.PlatformError{Status: resp.StatusCode, Body: string(respBody)}))
		}

		result = respBody
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = c.timeout
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

// ListChannelVideos paginates the uploads playlist, then fetches statistics
// in batches of 50 IDs and merges them (spec.md §4.D, §6).
func (c *Client) ListChannelVideos(ctx context.Context, channelID string, max int) ([]domain.VideoDescriptor, error) {
	uploadsPlaylist, err := c.uploadsPlaylistID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("op=platformclient.list_channel_videos.playlist: %w", err)
	}

	type partial struct {
		videoID, title, description, thumbnail, publishedAt string
	}
	var partials []partial

	pageToken := ""
	for len(partials) < max {
		q := url.Values{"part": {"snippet,contentDetails"}, "playlistId": {uploadsPlaylist}, "maxResults": {"50"}}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		raw, err := c.request(ctx, http.MethodGet, "/playlistItems", q, nil)
		if err != nil {
			return nil, fmt.Errorf("op=platformclient.list_channel_videos.page: %w", err)
		}
		var page playlistItemsResponse
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("op=platformclient.list_channel_videos.decode: %w", err)
		}
		for _, item := range page.Items {
			partials = append(partials, partial{
				videoID:     item.ContentDetails.VideoID,
				title:       item.Snippet.Title,
				description: item.Snippet.Description,
				thumbnail:   item.Snippet.Thumbnails.Default.URL,
				publishedAt: item.Snippet.PublishedAt,
			})
		}
		if page.NextPageToken == "" || len(partials) >= max {
			break
		}
		pageToken = page.NextPageToken
		time.Sleep(pageSpacer)
	}
	if len(partials) > max {
		partials = partials[:max]
	}

	stats := make(map[string]struct{ views, comments int64 })
	for i := 0; i < len(partials); i += 50 {
		end := i + 50
		if end > len(partials) {
			end = len(partials)
		}
		ids := make([]string, 0, end-i)
		for _, p := range partials[i:end] {
			ids = append(ids, p.videoID)
		}
		raw, err := c.request(ctx, http.MethodGet, "/videos", url.Values{"part": {"statistics"}, "id": {strings.Join(ids, ",")}}, nil)
		if err != nil {
			return nil, fmt.Errorf("op=platformclient.list_channel_videos.statistics: %w", err)
		}
		var vs videosStatisticsResponse
		if err := json.Unmarshal(raw, &vs); err != nil {
			return nil, fmt.Errorf("op=platformclient.list_channel_videos.statistics_decode: %w", err)
		}
		for _, v := range vs.Items {
			views, _ := strconv.ParseInt(v.Statistics.ViewCount, 10, 64)
			comments, _ := strconv.ParseInt(v.Statistics.CommentCount, 10, 64)
			stats[v.ID] = struct{ views, comments int64 }{views, comments}
		}
		if end < len(partials) {
			time.Sleep(pageSpacer)
		}
	}

	out := make([]domain.VideoDescriptor, 0, len(partials))
	for _, p := range partials {
		publishedAt, _ := time.Parse(time.RFC3339, p.publishedAt)
		s := stats[p.videoID]
		out = append(out, domain.VideoDescriptor{
			ExternalVideoID: p.videoID,
			Title:           p.title,
			Description:     p.description,
			ThumbnailURL:    p.thumbnail,
			PublishedAt:     publishedAt,
			ViewCount:       s.views,
			CommentCount:    s.comments,
		})
	}
	return out, nil
}

func (c *Client) uploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	q := url.Values{"part": {"contentDetails,snippet,statistics"}}
	if channelID == "" || channelID == "mine" {
		q.Set("mine", "true")
	} else {
		q.Set("id", channelID)
	}
	raw, err := c.request(ctx, http.MethodGet, "/channels", q, nil)
	if err != nil {
		return "", err
	}
	var resp channelsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("op=platformclient.uploads_playlist.decode: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("op=platformclient.uploads_playlist: %w", domain.ErrNotFound)
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

// ListVideoComments paginates comment threads ordered newest-first with
// text_format=plain, page size 100, up to max (spec.md §4.D).
func (c *Client) ListVideoComments(ctx context.Context, externalVideoID string, max int) ([]domain.CommentThread, error) {
	var out []domain.CommentThread
	pageToken := ""
	for len(out) < max {
		q := url.Values{
			"part":       {"snippet,replies"},
			"videoId":    {externalVideoID},
			"maxResults": {"100"},
			"textFormat": {"plainText"},
			"order":      {"time"},
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		raw, err := c.request(ctx, http.MethodGet, "/commentThreads", q, nil)
		if err != nil {
			return nil, fmt.Errorf("op=platformclient.list_video_comments.page: %w", err)
		}
		var page commentThreadsResponse
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("op=platformclient.list_video_comments.decode: %w", err)
		}
		for _, item := range page.Items {
			top := item.Snippet.TopLevelComment.Snippet
			publishedAt, _ := time.Parse(time.RFC3339, top.PublishedAt)
			out = append(out, domain.CommentThread{
				ExternalCommentID: item.ID,
				AuthorDisplayName: top.AuthorDisplayName,
				TextDisplay:       top.TextDisplay,
				PublishedAt:       publishedAt,
			})
			if len(out) >= max {
				break
			}
		}
		if page.NextPageToken == "" || len(out) >= max {
			break
		}
		pageToken = page.NextPageToken
		time.Sleep(pageSpacer)
	}
	return out, nil
}

// PostReply posts a top-level reply to parentCommentID.
func (c *Client) PostReply(ctx context.Context, parentCommentID, text string) (domain.PostedReply, error) {
	body := postCommentRequest{Snippet: postCommentSnippet{ParentID: parentCommentID, TextOriginal: text}}
	raw, err := c.request(ctx, http.MethodPost, "/comments", url.Values{"part": {"snippet"}}, body)
	if err != nil {
		return domain.PostedReply{}, fmt.Errorf("op=platformclient.post_reply: %w", err)
	}
	var resp postCommentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.PostedReply{}, fmt.Errorf("op=platformclient.post_reply.decode: %w", err)
	}
	return domain.PostedReply{ExternalReplyID: resp.ID, ParentCommentID: parentCommentID, Text: resp.Snippet.TextOriginal}, nil
}
