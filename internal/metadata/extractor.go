// Package metadata turns a video link into canonical metadata by querying the
// hosting platform's oEmbed endpoint.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/clipscope/clipscope/internal/models"
	"github.com/clipscope/clipscope/internal/resolver"
)

var (
	// ErrUnsupportedPlatform means the URL is not hosted on a known video
	// platform. No network call is made for such URLs.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrEmbedLookup wraps transport failures and non-2xx oEmbed responses.
	ErrEmbedLookup = errors.New("embed lookup failed")

	// ErrEmbedDecode wraps malformed oEmbed bodies.
	ErrEmbedDecode = errors.New("embed decode failed")
)

const (
	DefaultYouTubeEndpoint = "https://www.youtube.com/oembed"
	DefaultLoomEndpoint    = "https://www.loom.com/v1/oembed"
)

// URLResolver expands shortened links.
type URLResolver interface {
	Resolve(ctx context.Context, raw string) string
}

// Config holds the oEmbed endpoints. Tests point them at local servers.
type Config struct {
	YouTubeEndpoint string
	LoomEndpoint    string
	UserAgent       string
}

// Extractor resolves, classifies and looks up one URL at a time.
type Extractor struct {
	resolver URLResolver
	client   *http.Client
	cfg      Config
	logger   *slog.Logger
}

// NewExtractor builds an extractor. A nil client gets a 15s timeout client.
func NewExtractor(res URLResolver, client *http.Client, cfg Config, logger *slog.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.YouTubeEndpoint == "" {
		cfg.YouTubeEndpoint = DefaultYouTubeEndpoint
	}
	if cfg.LoomEndpoint == "" {
		cfg.LoomEndpoint = DefaultLoomEndpoint
	}
	return &Extractor{resolver: res, client: client, cfg: cfg, logger: logger}
}

// Classify maps a URL to a supported platform by registrable domain.
func Classify(raw string) (models.Platform, bool) {
	switch resolver.RegistrableDomain(raw) {
	case "youtube.com", "youtu.be":
		return models.PlatformYouTube, true
	case "loom.com":
		return models.PlatformLoom, true
	default:
		return "", false
	}
}

type oEmbedResponse struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
	Description  string `json:"description"`
}

// Extract returns metadata for the URL. Every error means "no metadata";
// callers count it as a failed URL and move on.
func (e *Extractor) Extract(ctx context.Context, raw string) (*models.VideoMetadata, error) {
	resolved := raw
	if e.resolver != nil {
		resolved = e.resolver.Resolve(ctx, raw)
	}

	platform, ok := Classify(resolved)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, resolved)
	}

	endpoint, err := e.endpoint(platform, resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedLookup, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedLookup, err)
	}
	req.Header.Set("Accept", "application/json")
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("oembed request failed", "url", resolved, "platform", platform, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrEmbedLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		e.logger.Warn("oembed request rejected", "url", resolved, "platform", platform, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrEmbedLookup, resp.StatusCode)
	}

	var body oEmbedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		e.logger.Warn("oembed response malformed", "url", resolved, "platform", platform, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrEmbedDecode, err)
	}

	title := body.Title
	if title == "" {
		title = models.DefaultVideoTitle
	}

	return &models.VideoMetadata{
		URL:          resolved,
		ThumbnailURL: body.ThumbnailURL,
		Title:        title,
		Platform:     platform,
		Description:  body.Description,
	}, nil
}

func (e *Extractor) endpoint(platform models.Platform, videoURL string) (string, error) {
	base := e.cfg.YouTubeEndpoint
	if platform == models.PlatformLoom {
		base = e.cfg.LoomEndpoint
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("url", videoURL)
	if platform == models.PlatformYouTube {
		q.Set("format", "json")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ErrorType maps an extraction error onto the ingestion error taxonomy.
func ErrorType(err error) models.IngestionErrorType {
	switch {
	case errors.Is(err, ErrUnsupportedPlatform):
		return models.ErrorTypeUnsupportedPlatform
	case errors.Is(err, ErrEmbedDecode):
		return models.ErrorTypeEmbedDecodeFailed
	default:
		return models.ErrorTypeEmbedLookupFailed
	}
}
