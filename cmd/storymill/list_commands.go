package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent render jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, ctx.logger())
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.jobs.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.ID,
					r.Title,
					r.Status,
					r.Stage,
					strconv.Itoa(r.SceneCount),
					humanize.Time(r.UpdatedAt),
					truncate(r.Error, 48),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Status", "Stage", "Scenes", "Updated", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON instead of a table")
	return cmd
}

func newArtifactsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "List registered artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, ctx.logger())
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.artifacts.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No artifacts")
				return nil
			}

			now := time.Now()
			rows := make([][]string, 0, len(list))
			for _, art := range list {
				expires := "never"
				if art.ExpiresAt != nil {
					expires = humanize.RelTime(*art.ExpiresAt, now, "ago", "from now")
				}
				rows = append(rows, []string{
					art.ID,
					art.Title,
					string(art.Format),
					humanize.Bytes(uint64(art.SizeBytes)),
					fmt.Sprintf("%.1fs", art.DurationSeconds),
					yesNo(art.Temporary),
					expires,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Format", "Size", "Duration", "Temporary", "Expires"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of artifacts to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON instead of a table")
	return cmd
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
