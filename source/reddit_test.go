package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/orgtrends/mentions"
)

const listingURL = `=~^https://oauth\.reddit\.com/r/stocks/`

func setupRedditMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodPost, DefaultRedditAuthURL,
		func(req *http.Request) (*http.Response, error) {
			user, pass, ok := req.BasicAuth()
			if !ok || user != "id" || pass != "secret" {
				return httpmock.NewStringResponse(http.StatusUnauthorized, `{"error":"invalid_grant"}`), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"access_token": "tok-123",
				"token_type":   "bearer",
				"expires_in":   86400,
			})
		})
}

func listingPage(after string, ids ...string) map[string]any {
	children := make([]map[string]any, len(ids))
	for i, id := range ids {
		children[i] = map[string]any{
			"kind": "t3",
			"data": map[string]any{
				"id":        id,
				"title":     "Post " + id + " about Tesla",
				"score":     100 - i,
				"url":       "https://example.com/" + id,
				"permalink": "/r/stocks/comments/" + id,
			},
		}
	}
	var afterVal any
	if after != "" {
		afterVal = after
	}
	return map[string]any{"kind": "Listing", "data": map[string]any{"after": afterVal, "children": children}}
}

func pageIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return ids
}

func newTestReddit(t *testing.T) *RedditSource {
	t.Helper()
	src, err := NewRedditSource(RedditConfig{ClientID: "id", ClientSecret: "secret", UserAgent: "orgtrends-test/0.1"})
	require.NoError(t, err)
	return src
}

func TestRedditFetchPaginatesUntilExhausted(t *testing.T) {
	setupRedditMock(t)
	var seen []string
	httpmock.RegisterResponder(http.MethodGet, listingURL+`top`,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
			assert.Equal(t, "orgtrends-test/0.1", req.Header.Get("User-Agent"))
			q := req.URL.Query()
			assert.Equal(t, "all", q.Get("t"))
			assert.Equal(t, "100", q.Get("limit"))
			seen = append(seen, q.Get("after"))
			switch q.Get("after") {
			case "":
				return httpmock.NewJsonResponse(http.StatusOK, listingPage("t3_p99", pageIDs("p", 100)...))
			case "t3_p99":
				return httpmock.NewJsonResponse(http.StatusOK, listingPage("", "q0", "q1"))
			}
			return httpmock.NewStringResponse(http.StatusBadRequest, "unexpected page"), nil
		})

	records, err := newTestReddit(t).Fetch(context.Background(), mentions.FetchOptions{Sort: mentions.SortTop})
	require.NoError(t, err)
	require.Len(t, records, 102)
	assert.Equal(t, []string{"", "t3_p99"}, seen)
	assert.Equal(t, mentions.RawRecord{
		ID:    "p0",
		Text:  "Post p0 about Tesla",
		Score: 100,
		URL:   "https://example.com/p0",
	}, records[0])
	assert.Equal(t, "q1", records[101].ID)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+DefaultRedditAuthURL])
}

func TestRedditFetchStopsAtLimit(t *testing.T) {
	setupRedditMock(t)
	var limits []string
	httpmock.RegisterResponder(http.MethodGet, listingURL+`new`,
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			assert.Empty(t, q.Get("t"), "only the top listing takes a time range")
			limits = append(limits, q.Get("limit"))
			if q.Get("after") == "" {
				return httpmock.NewJsonResponse(http.StatusOK, listingPage("t3_a99", pageIDs("a", 100)...))
			}
			return httpmock.NewJsonResponse(http.StatusOK, listingPage("t3_b49", pageIDs("b", 50)...))
		})

	src := newTestReddit(t)
	records, err := src.Fetch(context.Background(), mentions.FetchOptions{Sort: mentions.SortNew, Limit: 150})
	require.NoError(t, err)
	assert.Len(t, records, 150)
	assert.Equal(t, []string{"100", "50"}, limits)

	records, err = src.Fetch(context.Background(), mentions.FetchOptions{Sort: mentions.SortNew, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, records, 5)
	assert.Equal(t, "5", limits[len(limits)-1])

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+DefaultRedditAuthURL], "token is reused")
}

func TestRedditFetchEmptyListing(t *testing.T) {
	setupRedditMock(t)
	httpmock.RegisterResponder(http.MethodGet, listingURL+`hot`,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, listingPage("")))

	records, err := newTestReddit(t).Fetch(context.Background(), mentions.FetchOptions{Sort: mentions.SortHot})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRedditFetchFailures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		limited   bool
	}{
		{
			name: "rate limited",
			responder: func(*http.Request) (*http.Response, error) {
				resp := httpmock.NewStringResponse(http.StatusTooManyRequests, "Too Many Requests")
				resp.Header.Set("X-Ratelimit-Reset", "42")
				return resp, nil
			},
			limited: true,
		},
		{name: "server error", responder: httpmock.NewStringResponder(http.StatusServiceUnavailable, "down")},
		{name: "bad json", responder: httpmock.NewStringResponder(http.StatusOK, "<html>")},
		{name: "network", responder: httpmock.NewErrorResponder(fmt.Errorf("connection reset"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupRedditMock(t)
			httpmock.RegisterResponder(http.MethodGet, listingURL+`top`, tt.responder)

			_, err := newTestReddit(t).Fetch(context.Background(), mentions.FetchOptions{Sort: mentions.SortTop})
			require.ErrorIs(t, err, mentions.ErrSourceUnavailable)
			if tt.limited {
				require.ErrorIs(t, err, ErrRateLimited)
				assert.Contains(t, err.Error(), "42")
			}
		})
	}
}

func TestRedditAuthFailure(t *testing.T) {
	setupRedditMock(t)
	src, err := NewRedditSource(RedditConfig{ClientID: "id", ClientSecret: "wrong"})
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), mentions.FetchOptions{})
	require.ErrorIs(t, err, mentions.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "401")

	_, err = NewRedditSource(RedditConfig{})
	require.ErrorIs(t, err, mentions.ErrSourceUnavailable)
}

func TestRedditTokenRequest(t *testing.T) {
	setupRedditMock(t)
	httpmock.RegisterResponder(http.MethodPost, DefaultRedditAuthURL,
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseForm())
			assert.Equal(t, "client_credentials", req.PostForm.Get("grant_type"))
			assert.Empty(t, req.PostForm.Get("client_secret"), "credentials travel in the header")
			user, pass, ok := req.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "id", user)
			assert.Equal(t, "secret", pass)
			assert.Equal(t, "orgtrends-test/0.1", req.Header.Get("User-Agent"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"access_token": "tok-456",
				"token_type":   "bearer",
				"expires_in":   3600,
			})
		})
	httpmock.RegisterResponder(http.MethodGet, listingURL+`hot`,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer tok-456", req.Header.Get("Authorization"))
			return httpmock.NewJsonResponse(http.StatusOK, listingPage("", "h0"))
		})

	src := newTestReddit(t)
	assert.Equal(t, "stocks", src.Subreddit())
	for range 2 {
		records, err := src.Fetch(context.Background(), mentions.FetchOptions{Sort: mentions.SortHot})
		require.NoError(t, err)
		assert.Len(t, records, 1)
	}
	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+DefaultRedditAuthURL], "token is cached across fetches")
	assert.Equal(t, 2, info["GET "+listingURL+"hot"])
}

func TestRedditConfigDefaults(t *testing.T) {
	var empty RedditConfig
	empty.ApplyDefaults()
	assert.Equal(t, "stocks", empty.Subreddit)
	assert.Equal(t, DefaultRedditAuthURL, empty.AuthURL)

	cfg := RedditConfig{Subreddit: " r/wallstreetbets "}
	cfg.ApplyDefaults()
	assert.Equal(t, "wallstreetbets", cfg.Subreddit)
	assert.Equal(t, DefaultRedditAPIURL, cfg.APIURL)
	assert.Equal(t, "all", cfg.TimeRange)

	var raw map[string]any
	data, err := json.Marshal(RedditConfig{ClientID: "id", ClientSecret: "secret"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "client_id")
	assert.NotContains(t, raw, "ClientSecret")
}
