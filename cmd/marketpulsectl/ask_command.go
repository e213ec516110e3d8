package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/target/marketpulse/internal/client"
)

func newAskCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the latest analysis and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question is empty")
			}
			return ctx.withClient(func(c *client.Client) error {
				out := cmd.OutOrStdout()
				n, err := c.Ask(cmd.Context(), question, out)
				if n > 0 {
					fmt.Fprintln(out)
				}
				return err
			})
		},
	}
}
