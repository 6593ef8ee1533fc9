// Package resolver expands shortened links to their final destination.
package resolver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"
)

const maxInterstitialBytes = 512 << 10

// Resolver follows redirects for URLs hosted on known shorteners. It never
// fails: any problem yields the input URL unchanged.
type Resolver struct {
	client     *http.Client
	shorteners map[string]struct{}
	userAgent  string
	logger     *slog.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithUserAgent sets the User-Agent header sent to shorteners.
func WithUserAgent(ua string) Option {
	return func(r *Resolver) { r.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver for the given shortener domains.
func New(shorteners []string, opts ...Option) *Resolver {
	r := &Resolver{
		client:     &http.Client{Timeout: 15 * time.Second},
		shorteners: make(map[string]struct{}, len(shorteners)),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, d := range shorteners {
		r.shorteners[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegistrableDomain returns the eTLD+1 of the URL's host, or the bare host
// for IP addresses and hosts without a public suffix.
func RegistrableDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// IsShortened reports whether the URL is hosted on a configured shortener.
func (r *Resolver) IsShortened(raw string) bool {
	_, ok := r.shorteners[RegistrableDomain(raw)]
	return ok
}

// Resolve returns the final destination of a shortened URL. Non-shortened
// URLs are returned as is without any network call.
func (r *Resolver) Resolve(ctx context.Context, raw string) string {
	if !r.IsShortened(raw) {
		return raw
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		r.logger.Debug("resolver request build failed", "url", raw, "error", err)
		return raw
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("resolver fetch failed", "url", raw, "error", err)
		return raw
	}
	defer resp.Body.Close()

	final := resp.Request.URL.String()

	// Shorteners answer browsers with an HTML page carrying a refresh target
	// instead of a redirect.
	if r.IsShortened(final) && strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		if target := metaRefreshTarget(io.LimitReader(resp.Body, maxInterstitialBytes), resp.Request.URL); target != "" {
			r.logger.Debug("resolved via meta refresh", "url", raw, "resolved", target)
			return target
		}
	}

	r.logger.Debug("resolved shortened url", "url", raw, "resolved", final)
	return final
}

// metaRefreshTarget extracts the URL of a <meta http-equiv="refresh"> tag.
// Scripting is disabled while parsing so tags inside <noscript> are seen.
func metaRefreshTarget(body io.Reader, base *url.URL) string {
	root, err := html.ParseWithOptions(body, html.ParseOptionEnableScripting(false))
	if err != nil {
		return ""
	}

	var target string
	goquery.NewDocumentFromNode(root).Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		equiv, _ := s.Attr("http-equiv")
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			return true
		}
		content, _ := s.Attr("content")
		target = refreshURL(content)
		return target == ""
	})
	if target == "" {
		return ""
	}

	ref, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// refreshURL parses a refresh content value such as `0;URL='https://x'`.
func refreshURL(content string) string {
	for _, part := range strings.Split(content, ";") {
		part = strings.TrimSpace(part)
		if len(part) < 4 || !strings.EqualFold(part[:4], "url=") {
			continue
		}
		return strings.Trim(strings.TrimSpace(part[4:]), `'"`)
	}
	return ""
}
