package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/clipscope/clipscope/internal/models"
)

// MemoryDeduplicator drops items whose fingerprint was seen within a window.
// It catches reposts of the same link by the same author across polls.
type MemoryDeduplicator struct {
	mu           sync.Mutex
	fingerprints map[string]time.Time
	window       time.Duration
}

// NewMemoryDeduplicator creates a new in-memory deduplicator.
func NewMemoryDeduplicator(window time.Duration) *MemoryDeduplicator {
	return &MemoryDeduplicator{
		fingerprints: make(map[string]time.Time),
		window:       window,
	}
}

// Filter returns the items not seen before and marks them seen.
func (d *MemoryDeduplicator) Filter(items []models.InboundItem, now time.Time) []models.InboundItem {
	d.mu.Lock()
	defer d.mu.Unlock()

	unique := make([]models.InboundItem, 0, len(items))
	for _, item := range items {
		fp := ComputeItemFingerprint(item)
		if _, seen := d.fingerprints[fp]; seen {
			continue
		}
		d.fingerprints[fp] = now
		unique = append(unique, item)
	}
	return unique
}

// Cleanup removes fingerprints older than the window.
func (d *MemoryDeduplicator) Cleanup(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-d.window)
	for fp, seenAt := range d.fingerprints {
		if seenAt.Before(cutoff) {
			delete(d.fingerprints, fp)
		}
	}
}

// Size returns the number of fingerprints in the cache.
func (d *MemoryDeduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fingerprints)
}

// ComputeItemFingerprint hashes the author, normalized text and candidate
// URLs of an item.
func ComputeItemFingerprint(item models.InboundItem) string {
	data := strings.ToLower(item.AuthorUsername) + "|" +
		NormalizeContent(item.Text) + "|" +
		strings.Join(item.CandidateURLs(), ",")

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	urlPattern        = regexp.MustCompile(`https?://[^\s]+`)
	mentionPattern    = regexp.MustCompile(`@\w+`)
	punctPattern      = regexp.MustCompile(`[.,!?;:"']+`)
)

// NormalizeContent standardizes post text for comparison. Links are masked
// because shorteners mint a new URL for every post.
func NormalizeContent(content string) string {
	normalized := strings.ToLower(content)
	normalized = urlPattern.ReplaceAllString(normalized, "[URL]")
	normalized = mentionPattern.ReplaceAllString(normalized, "[MENTION]")
	normalized = punctPattern.ReplaceAllString(normalized, "")
	normalized = whitespacePattern.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}
