package models

import "time"

// Platform identifies a supported video host.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformLoom    Platform = "loom"
)

// DefaultVideoTitle is used when the embed lookup carries no title.
const DefaultVideoTitle = "Untitled Video"

// VideoMetadata is the canonical result of an embed lookup.
type VideoMetadata struct {
	URL          string   `json:"url"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Title        string   `json:"title"`
	Platform     Platform `json:"platform"`
	Description  string   `json:"description,omitempty"`
}

// Video is the enrichment record created for each successfully extracted URL.
// Identity fields never change after creation.
type Video struct {
	ID           string    `json:"id"`
	SourceURL    string    `json:"source_url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Platform     Platform  `json:"platform"`
	UserID       string    `json:"user_id"`
	ItemID       string    `json:"item_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LikedBy      []string  `json:"liked_by"`
	SavedBy      []string  `json:"saved_by"`
	CommentCount int       `json:"comment_count"`
}

// NewVideo builds a fresh enrichment record from extracted metadata.
func NewVideo(id, itemID, userID string, meta VideoMetadata, now time.Time) Video {
	return Video{
		ID:           id,
		SourceURL:    meta.URL,
		ThumbnailURL: meta.ThumbnailURL,
		Title:        meta.Title,
		Description:  meta.Description,
		Platform:     meta.Platform,
		UserID:       userID,
		ItemID:       itemID,
		CreatedAt:    now,
		UpdatedAt:    now,
		LikedBy:      []string{},
		SavedBy:      []string{},
	}
}
