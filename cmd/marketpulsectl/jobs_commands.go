package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/marketpulse/internal/client"
	"github.com/target/marketpulse/internal/domain/model"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		maxItems      int
		reuseExisting bool
		question      string
		wait          bool
		interval      time.Duration
	)
	cmd := &cobra.Command{
		Use:       "submit <collection|analysis|reporting|pipeline|answering>",
		Short:     "Submit a job",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobKindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind model.JobKind
			if err := kind.UnmarshalText([]byte(args[0])); err != nil {
				return err
			}
			input, err := buildInput(kind, maxItems, reuseExisting, question)
			if err != nil {
				return err
			}
			return ctx.withClient(func(c *client.Client) error {
				acc, err := c.Submit(cmd.Context(), kind, input)
				if err != nil {
					return err
				}
				if !wait {
					if ctx.jsonOutput() {
						return writeJSON(cmd, acc)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s job %s\n", acc.Kind, acc.ID)
					return nil
				}
				return watchJob(cmd, ctx, c, acc.ID, interval)
			})
		},
	}
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "Items to collect (collection and pipeline)")
	cmd.Flags().BoolVar(&reuseExisting, "reuse-existing", false, "Skip collection when products already exist (pipeline)")
	cmd.Flags().StringVarP(&question, "question", "q", "", "Question to answer (answering)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Watch the job until it finishes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval when waiting")
	return cmd
}

func jobKindNames() []string {
	kinds := model.AllJobKinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	return names
}

// buildInput assembles the job input from flags. The service validates bounds.
func buildInput(kind model.JobKind, maxItems int, reuseExisting bool, question string) (json.RawMessage, error) {
	var v any
	switch kind {
	case model.JobKindCollection:
		if maxItems == 0 {
			maxItems = model.DefaultCollectionItems
		}
		v = model.CollectionInput{MaxItems: maxItems}
	case model.JobKindPipeline:
		if maxItems == 0 {
			maxItems = model.DefaultCollectionItems
		}
		v = model.PipelineInput{MaxItems: maxItems, ReuseExisting: reuseExisting}
	case model.JobKindAnswering:
		if question == "" {
			return nil, errors.New("--question is required for answering jobs")
		}
		v = model.QuestionInput{Question: question}
	default:
		return nil, nil
	}
	return json.Marshal(v)
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's status and messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				view, err := c.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				return renderView(cmd.OutOrStdout(), view, shouldColorize(cmd.OutOrStdout()))
			})
		},
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Poll a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				return watchJob(cmd, ctx, c, args[0], interval)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval")
	return cmd
}

// watchJob prints each new state of a job and returns an error when the job fails.
func watchJob(cmd *cobra.Command, ctx *commandContext, c *client.Client, id string, interval time.Duration) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	var printed int
	final, err := c.Watch(cmd.Context(), id, interval, func(v model.StatusView) {
		if ctx.jsonOutput() {
			return
		}
		for _, m := range v.Messages[min(printed, len(v.Messages)):] {
			fmt.Fprintf(out, "%s  %-10s %s\n", m.At.Local().Format("15:04:05"), m.Source, m.Text)
		}
		printed = len(v.Messages)
		fmt.Fprintf(out, "[%3d%%] %s\n", v.Progress, renderStatus(v.Status, colorize))
	})
	if err != nil {
		return err
	}
	if ctx.jsonOutput() {
		if err := writeJSON(cmd, final); err != nil {
			return err
		}
	}
	if final.Status == model.JobStatusFailed {
		if final.ErrorCode != "" {
			return fmt.Errorf("job %s failed (%s): %s", final.ID, final.ErrorCode, final.Error)
		}
		return fmt.Errorf("job %s failed: %s", final.ID, final.Error)
	}
	return nil
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running collection or pipeline job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				view, err := c.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s\n", view.ID,
					renderStatus(view.Status, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var (
		output string
		latest bool
	)
	cmd := &cobra.Command{
		Use:   "download [job-id]",
		Short: "Download a job result, or the latest report with --latest-report",
		Args: func(_ *cobra.Command, args []string) error {
			if latest && len(args) > 0 {
				return errors.New("--latest-report takes no job id")
			}
			if !latest && len(args) != 1 {
				return errors.New("a job id is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				var (
					art *model.Artifact
					err error
				)
				if latest {
					art, err = c.LatestReport(cmd.Context())
				} else {
					art, err = c.Result(cmd.Context(), args[0], true)
				}
				if err != nil {
					return err
				}
				if output == "-" {
					_, err = cmd.OutOrStdout().Write(art.Data)
					return err
				}
				path := output
				if path == "" {
					path = filepath.Base(art.FileName)
				}
				if path == "" || path == "." || path == "/" {
					return errors.New("service sent no file name; pass --output")
				}
				if err := os.WriteFile(path, art.Data, 0o600); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{
						"path":         path,
						"content_type": art.ContentType,
						"bytes":        len(art.Data),
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", path, len(art.Data))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file, or - for stdout (default: the served file name)")
	cmd.Flags().BoolVar(&latest, "latest-report", false, "Download the most recent report")
	return cmd
}
