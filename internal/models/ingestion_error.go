package models

import (
	"time"
)

// IngestionError records a URL that could not be turned into a video.
type IngestionError struct {
	ID        string             `json:"id"`
	ItemID    string             `json:"item_id"`
	BatchID   string             `json:"batch_id,omitempty"`
	Platform  string             `json:"platform"` // e.g. "youtube", "loom", "" when unknown
	ErrorType IngestionErrorType `json:"error_type"`
	URL       string             `json:"url"`
	ErrorMsg  string             `json:"error_msg"`
	CreatedAt time.Time          `json:"created_at"`
}

// IngestionErrorType categorizes extraction failures.
type IngestionErrorType string

const (
	ErrorTypeUnsupportedPlatform IngestionErrorType = "unsupported_platform"
	ErrorTypeEmbedLookupFailed   IngestionErrorType = "embed_lookup_failed"
	ErrorTypeEmbedDecodeFailed   IngestionErrorType = "embed_decode_failed"
	ErrorTypeCommitFailed        IngestionErrorType = "commit_failed"
)
