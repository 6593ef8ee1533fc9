package models

import "time"

// Comment is a discussion entry attached to a video.
type Comment struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video_id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	IsBot     bool      `json:"is_bot"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
