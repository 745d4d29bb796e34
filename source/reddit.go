package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"yashubustudio/orgtrends/mentions"
)

// Reddit API endpoints.
const (
	DefaultRedditAuthURL = "https://www.reddit.com/api/v1/access_token"
	DefaultRedditAPIURL  = "https://oauth.reddit.com"
	DefaultSubreddit     = "stocks"
	redditPageSize       = 100
)

// ErrRateLimited is returned (wrapped in mentions.ErrSourceUnavailable) on HTTP 429.
var ErrRateLimited = errors.New("reddit rate limit exceeded")

// RedditConfig holds application-only OAuth credentials and the subreddit to read.
type RedditConfig struct {
	ClientID     string `json:"-" mapstructure:"client_id" yaml:"-"`
	ClientSecret string `json:"-" mapstructure:"client_secret" yaml:"-"`
	UserAgent    string `json:"userAgent" mapstructure:"user_agent" yaml:"user_agent"`
	Subreddit    string `json:"subreddit" mapstructure:"subreddit" yaml:"subreddit"`
	AuthURL      string `json:"authUrl,omitempty" mapstructure:"auth_url" yaml:"auth_url,omitempty"`
	APIURL       string `json:"apiUrl,omitempty" mapstructure:"api_url" yaml:"api_url,omitempty"`
	// TimeRange is the "t" parameter of the top listing.
	TimeRange string        `json:"timeRange" mapstructure:"time_range" yaml:"time_range"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
}

// ApplyDefaults populates unset values.
func (c *RedditConfig) ApplyDefaults() {
	if c.AuthURL == "" {
		c.AuthURL = DefaultRedditAuthURL
	}
	if c.APIURL == "" {
		c.APIURL = DefaultRedditAPIURL
	}
	if c.Subreddit == "" {
		c.Subreddit = DefaultSubreddit
	}
	c.Subreddit = strings.TrimPrefix(strings.TrimSpace(c.Subreddit), "r/")
	if c.UserAgent == "" {
		c.UserAgent = "orgtrends/1.0"
	}
	if c.TimeRange == "" {
		c.TimeRange = "all"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// RedditSource lists subreddit posts through the Reddit OAuth API.
type RedditSource struct {
	cfg    RedditConfig
	client *http.Client
}

// NewRedditSource validates credentials and builds a source. No request is made until Fetch.
func NewRedditSource(cfg RedditConfig) (*RedditSource, error) {
	cfg.ApplyDefaults()
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: reddit client id and secret are required", mentions.ErrSourceUnavailable)
	}
	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.AuthURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	// Token and listing requests share the base client so both carry the user agent.
	base := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: userAgentTransport{agent: cfg.UserAgent},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	return &RedditSource{
		cfg:    cfg,
		client: creds.Client(ctx),
	}, nil
}

// Subreddit returns the subreddit being read.
func (s *RedditSource) Subreddit() string { return s.cfg.Subreddit }

type userAgentTransport struct {
	agent string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return http.DefaultTransport.RoundTrip(req)
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data struct {
				ID        string `json:"id"`
				Title     string `json:"title"`
				Score     int    `json:"score"`
				URL       string `json:"url"`
				Permalink string `json:"permalink"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch pages through the listing selected by opts.Sort until the listing is exhausted or
// opts.Limit posts were collected. It does not retry.
func (s *RedditSource) Fetch(ctx context.Context, opts mentions.FetchOptions) ([]mentions.RawRecord, error) {
	sortOrder, err := mentions.ParseSortOrder(string(opts.Sort))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mentions.ErrSourceUnavailable, err)
	}

	var records []mentions.RawRecord
	after := ""
	for {
		pageSize := redditPageSize
		if opts.Limit > 0 {
			pageSize = min(pageSize, opts.Limit-len(records))
		}
		listing, err := s.fetchPage(ctx, sortOrder, after, pageSize)
		if err != nil {
			return nil, err
		}
		for _, child := range listing.Data.Children {
			post := child.Data
			link := post.URL
			if link == "" && post.Permalink != "" {
				link = "https://www.reddit.com" + post.Permalink
			}
			records = append(records, mentions.RawRecord{
				ID:    post.ID,
				Text:  post.Title,
				Score: post.Score,
				URL:   link,
			})
			if opts.Limit > 0 && len(records) >= opts.Limit {
				return records, nil
			}
		}
		after = listing.Data.After
		if after == "" || len(listing.Data.Children) == 0 {
			return records, nil
		}
	}
}

func (s *RedditSource) fetchPage(ctx context.Context, sortOrder mentions.SortOrder, after string, limit int) (*redditListing, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")
	if after != "" {
		q.Set("after", after)
	}
	if sortOrder == mentions.SortTop {
		q.Set("t", s.cfg.TimeRange)
	}
	endpoint := fmt.Sprintf("%s/r/%s/%s?%s", strings.TrimRight(s.cfg.APIURL, "/"),
		url.PathEscape(s.cfg.Subreddit), sortOrder, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build listing request: %w", mentions.ErrSourceUnavailable, err)
	}

	var listing redditListing
	if err := s.do(req, &listing); err != nil {
		return nil, fmt.Errorf("list r/%s/%s: %w", s.cfg.Subreddit, sortOrder, err)
	}
	return &listing, nil
}

func (s *RedditSource) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		var authErr *oauth2.RetrieveError
		if errors.As(err, &authErr) {
			status := 0
			if authErr.Response != nil {
				status = authErr.Response.StatusCode
			}
			return fmt.Errorf("%w: reddit auth (status %d): %w", mentions.ErrSourceUnavailable, status, authErr)
		}
		return fmt.Errorf("%w: %w", mentions.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		reset := resp.Header.Get("X-Ratelimit-Reset")
		if reset == "" {
			reset = resp.Header.Get("Retry-After")
		}
		return fmt.Errorf("%w: %w (reset in %ss)", mentions.ErrSourceUnavailable, ErrRateLimited, reset)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: unexpected status %d: %s", mentions.ErrSourceUnavailable,
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", mentions.ErrSourceUnavailable, err)
	}
	return nil
}
