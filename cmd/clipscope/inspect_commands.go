package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/clipscope/clipscope/internal/app"
	"github.com/clipscope/clipscope/internal/models"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:       "inspect <items|videos|analyses>",
		Short:     "List stored records",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"items", "videos", "analyses"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				colorize := shouldColorize(cmd.OutOrStdout())
				switch args[0] {
				case "items":
					items, err := a.Store.ListItems(cmd.Context(), limit)
					if err != nil {
						return err
					}
					return ctx.output(cmd, items, func() string { return renderItems(items, colorize) })
				case "videos":
					videos, err := a.Store.ListVideos(cmd.Context(), limit)
					if err != nil {
						return err
					}
					return ctx.output(cmd, videos, func() string { return renderVideos(videos) })
				default:
					analyses, err := a.Store.ListAnalyses(cmd.Context(), limit)
					if err != nil {
						return err
					}
					return ctx.output(cmd, analyses, func() string { return renderAnalyses(analyses, colorize) })
				}
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum records to show")
	return cmd
}

func renderItems(items []models.InboundItem, colorize bool) string {
	if len(items) == 0 {
		return "No items"
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		status := item.ProcessingStatus
		if !item.IsProcessed {
			status = "pending"
		}
		videos := "-"
		if s := item.ProcessingSummary; s != nil {
			videos = strconv.Itoa(s.Processed)
		}
		rows = append(rows, []string{
			item.ID,
			item.BatchID,
			item.AuthorUsername,
			strconv.Itoa(len(item.RawURLs)),
			videos,
			stateLabel(status, colorize),
			ago(item.CreatedAt),
		})
	}
	return renderTable(
		[]string{"ID", "Batch", "Author", "URLs", "Videos", "Status", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func renderVideos(videos []models.Video) string {
	if len(videos) == 0 {
		return "No videos"
	}
	rows := make([][]string, 0, len(videos))
	for _, v := range videos {
		rows = append(rows, []string{
			v.ID,
			string(v.Platform),
			truncate(v.Title, 40),
			humanize.Comma(int64(v.CommentCount)),
			ago(v.CreatedAt),
		})
	}
	return renderTable(
		[]string{"ID", "Platform", "Title", "Comments", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func renderAnalyses(analyses []models.Analysis, colorize bool) string {
	if len(analyses) == 0 {
		return "No analyses"
	}
	rows := make([][]string, 0, len(analyses))
	for _, a := range analyses {
		rows = append(rows, []string{
			a.VideoID,
			stateLabel(string(a.State()), colorize),
			a.Metadata.Outcome,
			fmt.Sprintf("%d", len(a.TechStack)),
			ago(a.LastUpdated),
		})
	}
	return renderTable(
		[]string{"Video", "State", "Outcome", "Stack", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		rebuild bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search completed analyses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				if rebuild {
					n, err := a.Index.Rebuild(cmd.Context(), a.Store)
					if err != nil {
						return fmt.Errorf("rebuild index: %w", err)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "Indexed %s analyses\n", humanize.Comma(int64(n)))
				}
				results, err := a.Index.Search(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				return ctx.output(cmd, results, func() string {
					if len(results) == 0 {
						return "No matches"
					}
					rows := make([][]string, 0, len(results))
					for _, r := range results {
						rows = append(rows, []string{r.VideoID, r.Platform, truncate(r.Title, 40), strconv.FormatFloat(r.Score, 'f', 3, 64)})
					}
					return renderTable([]string{"Video", "Platform", "Title", "Score"}, rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight})
				})
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum results")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Rebuild the index from stored analyses first")
	return cmd
}
