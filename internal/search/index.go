// Package search keeps a full-text index over completed video analyses.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/clipscope/clipscope/internal/models"
)

// Index wraps a Bleve search index
type Index struct {
	index bleve.Index
}

// Document is what gets indexed for one video.
type Document struct {
	VideoID  string
	Title    string
	Platform string
	Overview string
	Details  string
	Stack    []string
	Patterns []string
	Practice []string
}

// Result is one search hit.
type Result struct {
	VideoID   string              `json:"video_id"`
	Title     string              `json:"title"`
	Platform  string              `json:"platform"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

// Open opens or creates the index at path. An empty path keeps the index in
// memory.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return &Index{index: idx}, nil
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	english := bleve.NewTextFieldMapping()
	english.Analyzer = "en"

	// stack entries are names, so no stemming
	names := bleve.NewTextFieldMapping()
	names.Analyzer = "standard"

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("VideoID", keyword)
	docMapping.AddFieldMappingsAt("Title", english)
	docMapping.AddFieldMappingsAt("Platform", keyword)
	docMapping.AddFieldMappingsAt("Overview", english)
	docMapping.AddFieldMappingsAt("Details", english)
	docMapping.AddFieldMappingsAt("Stack", names)
	docMapping.AddFieldMappingsAt("Patterns", english)
	docMapping.AddFieldMappingsAt("Practice", english)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexAnalysis adds or replaces the document for a video. Analyses that are
// not completed are removed instead.
func (i *Index) IndexAnalysis(ctx context.Context, video models.Video, a models.Analysis) error {
	if a.State() != models.AnalysisStateCompleted {
		return i.index.Delete(video.ID)
	}
	doc := newDocument(video, a)
	return i.index.Index(doc.VideoID, doc)
}

func newDocument(video models.Video, a models.Analysis) Document {
	return Document{
		VideoID:  video.ID,
		Title:    video.Title,
		Platform: string(video.Platform),
		Overview: a.ImplementationOverview,
		Details:  a.TechnicalDetails,
		Stack:    a.TechStack,
		Patterns: a.ArchitecturePatterns,
		Practice: a.BestPractices,
	}
}

// Search runs a query string query (quotes, +/-, field:value, fuzzy ~).
func (i *Index) Search(ctx context.Context, queryStr string, limit int) ([]Result, error) {
	queryStr = strings.TrimSpace(queryStr)
	if queryStr == "" {
		return []Result{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(queryStr), limit, 0, false)
	req.Highlight = bleve.NewHighlight()
	req.Fields = []string{"Title", "Platform"}

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := Result{VideoID: hit.ID, Score: hit.Score, Fragments: hit.Fragments}
		if title, ok := hit.Fields["Title"].(string); ok {
			r.Title = title
		}
		if platform, ok := hit.Fields["Platform"].(string); ok {
			r.Platform = platform
		}
		results = append(results, r)
	}
	return results, nil
}

// Source is what Rebuild reads from.
type Source interface {
	ListAnalyses(ctx context.Context, limit int) ([]models.Analysis, error)
	GetVideo(ctx context.Context, id string) (*models.Video, error)
}

// Rebuild indexes every completed analysis in the store in one batch.
func (i *Index) Rebuild(ctx context.Context, src Source) (int, error) {
	analyses, err := src.ListAnalyses(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list analyses: %w", err)
	}

	batch := i.index.NewBatch()
	indexed := 0
	for _, a := range analyses {
		if a.State() != models.AnalysisStateCompleted {
			continue
		}
		video, err := src.GetVideo(ctx, a.VideoID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("get video %s: %w", a.VideoID, err)
		}
		doc := newDocument(*video, a)
		if err := batch.Index(doc.VideoID, doc); err != nil {
			return 0, fmt.Errorf("batch index %s: %w", doc.VideoID, err)
		}
		indexed++
	}

	if err := i.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return indexed, nil
}

// Count returns the number of documents in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
