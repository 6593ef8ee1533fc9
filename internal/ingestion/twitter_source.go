package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/clipscope/clipscope/internal/models"
)

const defaultTwitterAPI = "https://api.twitter.com/2"

// TwitterSource polls tracked accounts through the Twitter API v2 and turns
// their tweets into inbound items carrying the expanded link targets.
type TwitterSource struct {
	bearerToken string
	baseURL     string
	accounts    []string
	client      *http.Client
	retry       RetryPolicy
	logger      *slog.Logger

	mu       sync.Mutex
	userIDs  map[string]string
	sinceIDs map[string]string
}

// TwitterOption customizes a TwitterSource.
type TwitterOption func(*TwitterSource)

// WithTwitterBaseURL points the source at another API root.
func WithTwitterBaseURL(u string) TwitterOption {
	return func(s *TwitterSource) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithTwitterClient replaces the HTTP client.
func WithTwitterClient(c *http.Client) TwitterOption {
	return func(s *TwitterSource) { s.client = c }
}

// WithTwitterRetry replaces the retry policy for API calls.
func WithTwitterRetry(p RetryPolicy) TwitterOption {
	return func(s *TwitterSource) { s.retry = p }
}

// NewTwitterSource creates a source for the given usernames.
func NewTwitterSource(bearerToken string, accounts []string, logger *slog.Logger, opts ...TwitterOption) *TwitterSource {
	s := &TwitterSource{
		bearerToken: bearerToken,
		baseURL:     defaultTwitterAPI,
		client:      &http.Client{Timeout: 30 * time.Second},
		retry:       DefaultRetryPolicy(),
		logger:      logger,
		userIDs:     make(map[string]string),
		sinceIDs:    make(map[string]string),
	}
	for _, a := range accounts {
		if a = strings.TrimPrefix(strings.TrimSpace(a), "@"); a != "" {
			s.accounts = append(s.accounts, a)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Source.
func (s *TwitterSource) Name() string { return "twitter" }

type twitterTweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	Entities  struct {
		URLs []struct {
			URL         string `json:"url"`
			ExpandedURL string `json:"expanded_url"`
		} `json:"urls"`
	} `json:"entities"`
}

// Fetch implements Source. One failing account does not prevent the others
// from being read; their errors are joined.
func (s *TwitterSource) Fetch(ctx context.Context) ([]models.InboundItem, error) {
	var (
		items []models.InboundItem
		errs  []error
	)
	for _, username := range s.accounts {
		fetched, err := s.fetchAccount(ctx, username)
		if err != nil {
			s.logger.Warn("twitter account fetch failed", "username", username, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", username, err))
			continue
		}
		items = append(items, fetched...)
	}
	return items, errors.Join(errs...)
}

func (s *TwitterSource) fetchAccount(ctx context.Context, username string) ([]models.InboundItem, error) {
	userID, err := s.userID(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user ID: %w", err)
	}

	s.mu.Lock()
	sinceID := s.sinceIDs[username]
	s.mu.Unlock()

	s.logger.Info("fetching tweets", "username", username, "since_id", sinceID)

	q := url.Values{}
	q.Set("tweet.fields", "created_at,author_id,entities")
	q.Set("max_results", "10")
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}

	var result struct {
		Data []twitterTweet `json:"data"`
	}
	if err := s.get(ctx, "/users/"+url.PathEscape(userID)+"/tweets?"+q.Encode(), &result); err != nil {
		return nil, fmt.Errorf("failed to fetch tweets: %w", err)
	}

	items := make([]models.InboundItem, 0, len(result.Data))
	latest := sinceID
	for _, tweet := range result.Data {
		items = append(items, tweetToItem(username, tweet))
		latest = newerTweetID(latest, tweet.ID)
	}

	s.mu.Lock()
	s.sinceIDs[username] = latest
	s.mu.Unlock()

	s.logger.Info("fetched tweets", "username", username, "count", len(items))
	return items, nil
}

func tweetToItem(username string, tweet twitterTweet) models.InboundItem {
	urls := make([]string, 0, len(tweet.Entities.URLs))
	for _, u := range tweet.Entities.URLs {
		target := u.ExpandedURL
		if target == "" {
			target = u.URL
		}
		urls = append(urls, target)
	}
	return models.InboundItem{
		ID:               "twitter-" + tweet.ID,
		AuthorUsername:   username,
		AuthorExternalID: tweet.AuthorID,
		Text:             tweet.Text,
		RawURLs:          urls,
		ProcessingStatus: models.ProcessingStatusPending,
		CreatedAt:        tweet.CreatedAt,
	}
}

func (s *TwitterSource) userID(ctx context.Context, username string) (string, error) {
	s.mu.Lock()
	id, ok := s.userIDs[username]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := s.get(ctx, "/users/by/username/"+url.PathEscape(username), &result); err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("user %s not found", username)
	}

	s.mu.Lock()
	s.userIDs[username] = result.Data.ID
	s.mu.Unlock()
	return result.Data.ID, nil
}

// get performs an authenticated GET with retries on rate limiting and server
// errors.
func (s *TwitterSource) get(ctx context.Context, path string, out any) error {
	return Retry(ctx, s.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+s.bearerToken)

		resp, err := s.client.Do(req)
		if err != nil {
			return NewRetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			apiErr := fmt.Errorf("twitter API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				return NewRetryableErrorWithDelay(apiErr, RetryAfter(resp.Header.Get("Retry-After")))
			case resp.StatusCode >= 500:
				return NewRetryableError(apiErr)
			default:
				return apiErr
			}
		}

		return json.NewDecoder(resp.Body).Decode(out)
	})
}

// newerTweetID compares snowflake ids, which grow in length before they
// grow lexically.
func newerTweetID(a, b string) string {
	if len(a) != len(b) {
		if len(a) > len(b) {
			return a
		}
		return b
	}
	if a > b {
		return a
	}
	return b
}
