package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clipscope/clipscope/internal/app"
	"github.com/clipscope/clipscope/internal/ingestion"
	"github.com/clipscope/clipscope/internal/models"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Build applies migrations when it opens the store.
			return ctx.withApp(cmd, func(a *app.App) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s)\n", a.Config.Database.Driver)
				return nil
			})
		},
	}
}

func newSeedItemCommand(ctx *commandContext) *cobra.Command {
	var (
		batchID string
		author  string
		text    string
		urls    []string
		process bool
	)

	cmd := &cobra.Command{
		Use:   "seed-item",
		Short: "Insert an inbound item for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(author) == "" {
				return errors.New("--author is required")
			}
			if len(urls) == 0 {
				return errors.New("at least one --url is required")
			}
			if batchID == "" {
				batchID = uuid.NewString()
			}

			return ctx.withApp(cmd, func(a *app.App) error {
				item := models.InboundItem{
					ID:             uuid.NewString(),
					BatchID:        batchID,
					AuthorUsername: author,
					Text:           text,
					RawURLs:        urls,
					CreatedAt:      time.Now().UTC(),
				}
				if err := a.Store.CreateItems(cmd.Context(), []models.InboundItem{item}); err != nil {
					return fmt.Errorf("create item: %w", err)
				}
				if !process {
					return ctx.output(cmd, item, func() string {
						return fmt.Sprintf("Created item %s in batch %s", item.ID, item.BatchID)
					})
				}
				return runBatch(cmd, ctx, a, batchID)
			})
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "Batch id (generated when empty)")
	cmd.Flags().StringVar(&author, "author", "", "Author username")
	cmd.Flags().StringVar(&text, "text", "", "Item text")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "Candidate URL (repeatable)")
	cmd.Flags().BoolVar(&process, "process", false, "Process the batch right away")
	return cmd
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Batch operations",
	}
	batchCmd.AddCommand(&cobra.Command{
		Use:   "run <batch-id>",
		Short: "Process the pending items of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				return runBatch(cmd, ctx, a, args[0])
			})
		},
	})
	return batchCmd
}

func runBatch(cmd *cobra.Command, ctx *commandContext, a *app.App, batchID string) error {
	res, err := a.Coordinator.HandleBatchReady(cmd.Context(), models.BatchReadyMessage{
		BatchID:   batchID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return ctx.output(cmd, res, func() string { return renderBatchResult(res) })
}

func renderBatchResult(res ingestion.BatchResult) string {
	rows := [][]string{
		{"Batch", res.BatchID},
		{"Items", humanize.Comma(int64(res.TotalItems))},
		{"Pending", humanize.Comma(int64(res.PendingItems))},
		{"Videos created", humanize.Comma(int64(res.VideosCreated))},
		{"Failed URLs", humanize.Comma(int64(res.FailedURLs))},
		{"Duplicate delivery", strconv.FormatBool(res.Duplicate)},
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <video-id>",
		Short: "Run the technical analysis of one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				if a.Orchestrator == nil {
					return errors.New("analysis is not configured; set ANALYSIS_PROVIDER and its credentials")
				}
				if err := a.Orchestrator.Run(cmd.Context(), args[0]); err != nil {
					return err
				}
				result, err := a.Store.GetAnalysis(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return ctx.output(cmd, result, func() string {
					return renderAnalysis(*result, shouldColorize(cmd.OutOrStdout()))
				})
			})
		},
	}
}

func renderAnalysis(a models.Analysis, colorize bool) string {
	confidence := "-"
	if c := a.Metadata.Confidence; c != nil {
		confidence = strconv.FormatFloat(*c, 'f', 2, 64)
	}
	rows := [][]string{
		{"Video", a.VideoID},
		{"State", stateLabel(string(a.State()), colorize)},
		{"Outcome", a.Metadata.Outcome},
		{"Confidence", confidence},
		{"Attempts", strconv.Itoa(a.Metadata.Attempts)},
		{"Overview", truncate(a.ImplementationOverview, 80)},
		{"Tech stack", strings.Join(a.TechStack, ", ")},
		{"Patterns", strings.Join(a.ArchitecturePatterns, ", ")},
		{"Practices", strings.Join(a.BestPractices, ", ")},
	}
	if a.Error != "" {
		rows = append(rows, []string{"Error", truncate(a.Error, 80)})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}
