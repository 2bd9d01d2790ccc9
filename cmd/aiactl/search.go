package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func searchCmd(opts *rootOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Print the context assembled for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if topK == 0 {
				topK = a.Config.Search.DefaultTopK
			}

			assembled, err := a.Search.Search(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			if assembled == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "No matching context found.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), assembled)
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of passages (default: search.defaultTopK)")
	return cmd
}
