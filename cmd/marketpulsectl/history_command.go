package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/target/marketpulse/internal/client"
	"github.com/target/marketpulse/internal/domain/model"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		date     string
		status   string
		kind     string
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := client.HistoryQuery{
				Date:     model.ParseDateFilter(date),
				Status:   model.JobStatus(status),
				Page:     page,
				PageSize: pageSize,
			}
			if kind != "" {
				if err := q.Kind.UnmarshalText([]byte(kind)); err != nil {
					return err
				}
			}
			return ctx.withClient(func(c *client.Client) error {
				result, err := c.History(cmd.Context(), q)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				if len(result.Items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderHistory(result, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date window: all, today, week or month")
	cmd.Flags().StringVar(&status, "status", "", "Only jobs in this status")
	cmd.Flags().StringVar(&kind, "kind", "", "Only jobs of this kind")
	cmd.Flags().IntVar(&page, "page", 0, "Page number, starting at 1")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Jobs per page")
	return cmd
}
