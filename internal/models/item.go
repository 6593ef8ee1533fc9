package models

import (
	"strings"
	"time"
)

// ProcessingStatus values recorded on inbound items once they leave the queue.
const (
	ProcessingStatusPending   = "pending"
	ProcessingStatusCompleted = "completed"
	ProcessingStatusFailed    = "failed"
)

// InboundItem is a social-media post awaiting video extraction. Items are
// created by an ingestion source and mutated exactly once by the coordinator.
type InboundItem struct {
	ID                string             `json:"id"`
	BatchID           string             `json:"batch_id"`
	AuthorUsername    string             `json:"author_username"`
	AuthorExternalID  string             `json:"author_external_id"`
	Text              string             `json:"text,omitempty"`
	RawURLs           []string           `json:"raw_urls"`
	IsProcessed       bool               `json:"is_processed"`
	ProcessingStatus  string             `json:"processing_status"`
	ProcessingSummary *ProcessingSummary `json:"processing_summary,omitempty"`
	ProcessingError   string             `json:"processing_error,omitempty"`
	ProcessedAt       *time.Time         `json:"processed_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// ProcessingSummary counts the URL outcomes of one item.
type ProcessingSummary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// CandidateURLs returns the raw URLs that look like absolute http(s) links.
// Relative paths such as hashtag links are dropped before any network call.
func (i InboundItem) CandidateURLs() []string {
	urls := make([]string, 0, len(i.RawURLs))
	for _, raw := range i.RawURLs {
		if strings.HasPrefix(raw, "http") {
			urls = append(urls, raw)
		}
	}
	return urls
}

// ItemStatusUpdate is the single status transition applied to an item.
type ItemStatusUpdate struct {
	ItemID           string
	ProcessingStatus string
	Summary          ProcessingSummary
	ProcessingError  string
	ProcessedAt      time.Time
}

// BatchReadyMessage announces that every item of a batch has been written.
type BatchReadyMessage struct {
	BatchID   string `json:"batchId"`
	Timestamp string `json:"timestamp"`
}
