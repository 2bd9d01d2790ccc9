package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alpa-strategie/aia-backend/internal/indexing"
)

func reindexCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	var progress bool
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector index from Notion (or the fallback knowledge base)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if timeout <= 0 {
				timeout = a.Config.Indexing.Timeout()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			var observers []indexing.Observer
			if progress {
				observers = append(observers, func(p indexing.Progress) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%-6s batch %d/%d  %d/%d\n", p.Stage, p.Batch, p.Batches, p.Done, p.Total)
				})
			}

			result, err := a.Orchestrator.ReindexAll(indexing.WithTrigger(ctx, "cli"), observers...)
			if err != nil {
				return fmt.Errorf("reindex failed: %w", err)
			}

			out := struct {
				*indexing.Result
				DurationMS int64 `json:"duration"`
			}{Result: result, DurationMS: result.Duration.Milliseconds()}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the run after this long (default: indexing.timeoutSec)")
	cmd.Flags().BoolVar(&progress, "progress", false, "print batch checkpoints to stderr")
	return cmd
}
