package models

import "time"

// InferenceLog represents a single model call made by the analysis stage.
type InferenceLog struct {
	ID           int       `json:"id"`
	Provider     string    `json:"provider"`  // 'openai', 'googleai', 'bedrock'
	Model        string    `json:"model"`     // 'gpt-4o', 'gemini-1.5-flash', ...
	Operation    string    `json:"operation"` // 'video_analysis'
	VideoID      string    `json:"video_id,omitempty"`
	InputTokens  *int      `json:"input_tokens"`
	OutputTokens *int      `json:"output_tokens"`
	LatencyMs    *int      `json:"latency_ms"`
	Status       string    `json:"status"` // 'success', 'error'
	ErrorMessage *string   `json:"error_message"`
	Metadata     string    `json:"metadata"` // JSON metadata
	CreatedAt    time.Time `json:"created_at"`
}
