// Package discussion answers comments that mention the bot with the video's
// analysis.
package discussion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/clipscope/clipscope/internal/config"
	"github.com/clipscope/clipscope/internal/models"
)

var replyNamespace = uuid.MustParse("5b0e2a91-7c44-4f0b-9d7e-2c8f3e6a1b40")

// Store is the part of the document store the responder needs.
type Store interface {
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	CreateComment(ctx context.Context, c models.Comment) error
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	GetAnalysis(ctx context.Context, videoID string) (*models.Analysis, error)
}

var replyTemplate = template.Must(template.New("reply").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`{{- if eq .State "pending" -}}
The analysis of "{{.Title}}" has not started yet. Check back soon.
{{- else if eq .State "initializing" -}}
The analysis of "{{.Title}}" is still processing. Check back soon.
{{- else if eq .State "failed" -}}
The analysis of "{{.Title}}" failed: {{.Error}}
{{- else -}}
Technical analysis of "{{.Title}}"
{{- with .Overview}}

{{.}}{{end}}
{{- with .Stack}}

Tech stack: {{join . ", "}}{{end}}
{{- with .Patterns}}

Architecture patterns: {{join . ", "}}{{end}}
{{- with .Practices}}

Best practices: {{join . ", "}}{{end}}
{{- end}}`))

type replyData struct {
	State     string
	Title     string
	Error     string
	Overview  string
	Stack     []string
	Patterns  []string
	Practices []string
}

// Responder posts bot replies.
type Responder struct {
	store     Store
	phrase    string
	botUserID string
	logger    *slog.Logger
	now       func() time.Time
}

// NewResponder creates a responder.
func NewResponder(store Store, cfg config.DiscussionConfig, logger *slog.Logger) *Responder {
	return &Responder{
		store:     store,
		phrase:    strings.ToLower(cfg.TriggerPhrase),
		botUserID: cfg.BotUserID,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleComment replies to the comment when it mentions the trigger phrase.
// The reply id derives from the comment id, so a redelivered trigger does
// not post twice.
func (r *Responder) HandleComment(ctx context.Context, commentID string) error {
	c, err := r.store.GetComment(ctx, commentID)
	if errors.Is(err, models.ErrNotFound) {
		r.logger.Warn("comment not found", "comment_id", commentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get comment %s: %w", commentID, err)
	}
	if c.IsBot || c.UserID == r.botUserID || !r.Mentions(c.Text) {
		return nil
	}

	replyID := uuid.NewSHA1(replyNamespace, []byte(c.ID)).String()
	if _, err := r.store.GetComment(ctx, replyID); err == nil {
		r.logger.Debug("comment already answered", "comment_id", c.ID)
		return nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("get reply %s: %w", replyID, err)
	}

	text, err := r.render(ctx, c.VideoID)
	if err != nil {
		return err
	}

	reply := models.Comment{
		ID:        replyID,
		VideoID:   c.VideoID,
		UserID:    r.botUserID,
		Text:      text,
		IsBot:     true,
		ReplyTo:   c.ID,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.CreateComment(ctx, reply); err != nil {
		return fmt.Errorf("create reply to %s: %w", c.ID, err)
	}
	r.logger.Info("replied to comment", "comment_id", c.ID, "video_id", c.VideoID)
	return nil
}

// Mentions reports whether text contains the trigger phrase.
func (r *Responder) Mentions(text string) bool {
	return r.phrase != "" && strings.Contains(strings.ToLower(text), r.phrase)
}

func (r *Responder) render(ctx context.Context, videoID string) (string, error) {
	data := replyData{State: "pending", Title: models.DefaultVideoTitle}

	video, err := r.store.GetVideo(ctx, videoID)
	switch {
	case err == nil:
		if video.Title != "" {
			data.Title = video.Title
		}
	case !errors.Is(err, models.ErrNotFound):
		return "", fmt.Errorf("get video %s: %w", videoID, err)
	}

	a, err := r.store.GetAnalysis(ctx, videoID)
	switch {
	case err == nil:
		data.State = string(a.State())
		data.Error = a.Error
		data.Overview = a.ImplementationOverview
		data.Stack = a.TechStack
		data.Patterns = a.ArchitecturePatterns
		data.Practices = a.BestPractices
	case !errors.Is(err, models.ErrNotFound):
		return "", fmt.Errorf("get analysis %s: %w", videoID, err)
	}

	var b strings.Builder
	if err := replyTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render reply: %w", err)
	}
	return b.String(), nil
}
