package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/deusflow/newswire/internal/news"
	"github.com/deusflow/newswire/internal/storage"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	var (
		unsentOnly bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List stored articles and their delivery state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := storage.Open(cmd.Context(), cfg.Store, log)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Records(cmd.Context())
			if err != nil {
				return err
			}

			var rows [][]string
			for i, r := range records {
				if unsentOnly && r.Delivered {
					continue
				}
				if limit > 0 && len(rows) >= limit {
					break
				}
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					truncate(r.Title, 60),
					r.Source,
					publishedCell(r),
					yesNo(r.Delivered),
				})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No records")
				return nil
			}
			out := renderTable(
				[]string{"#", "Title", "Source", "Published", "Delivered"},
				rows,
				[]text.Align{text.AlignRight, text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			fmt.Fprintf(cmd.OutOrStdout(), "%d records, %d pending delivery\n", len(records), len(news.Unsent(records)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&unsentOnly, "unsent", false, "Show only records not delivered yet")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many rows")
	return cmd
}

func newCursorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cursor",
		Short: "Print the newest publish time in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := storage.Open(cmd.Context(), cfg.Store, log)
			if err != nil {
				return err
			}
			defer store.Close()

			t, ok, err := store.LastPublished(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "none")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Format(time.RFC3339))
			return nil
		},
	}
}

func publishedCell(r news.Record) string {
	if r.HasPublished() {
		return r.PublishedAt.Format("2006-01-02 15:04")
	}
	if r.PublishedRaw != "" {
		return r.PublishedRaw
	}
	return "-"
}

func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) {
			align = aligns[i]
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
