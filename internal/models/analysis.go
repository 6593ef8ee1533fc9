package models

import "time"

// AnalysisState is derived from the IsProcessing and Error fields.
type AnalysisState string

const (
	AnalysisStateInitializing AnalysisState = "initializing"
	AnalysisStateCompleted    AnalysisState = "completed"
	AnalysisStateFailed       AnalysisState = "failed"
)

// Analysis is the technical analysis of one video. Each state transition
// replaces the whole record; there is no partial update.
type Analysis struct {
	VideoID                string           `json:"video_id"`
	ImplementationOverview string           `json:"implementation_overview"`
	TechnicalDetails       string           `json:"technical_details"`
	TechStack              []string         `json:"tech_stack"`
	ArchitecturePatterns   []string         `json:"architecture_patterns"`
	BestPractices          []string         `json:"best_practices"`
	IsProcessing           bool             `json:"is_processing"`
	Error                  string           `json:"error,omitempty"`
	LastUpdated            time.Time        `json:"last_updated"`
	Metadata               AnalysisMetadata `json:"metadata"`
}

// AnalysisMetadata holds bookkeeping that readers normally ignore.
type AnalysisMetadata struct {
	StartTime            time.Time `json:"start_time"`
	Attempts             int       `json:"attempts"`
	LastError            string    `json:"last_error,omitempty"`
	RawModelResponse     string    `json:"raw_model_response,omitempty"`
	Confidence           *float64  `json:"confidence,omitempty"`
	ProcessingDurationMs *int64    `json:"processing_duration_ms,omitempty"`
	Outcome              string    `json:"outcome,omitempty"`
	ContentDigest        string    `json:"content_digest,omitempty"`
	Model                string    `json:"model,omitempty"`
}

// State reports where the record sits in the analysis state machine.
func (a Analysis) State() AnalysisState {
	switch {
	case a.IsProcessing:
		return AnalysisStateInitializing
	case a.Error != "":
		return AnalysisStateFailed
	default:
		return AnalysisStateCompleted
	}
}
