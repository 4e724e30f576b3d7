package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"party-avatar/internal/config"
	"party-avatar/internal/helper"
	"party-avatar/internal/rag"
)

func newRetrieveCommand(ctx *commandContext) *cobra.Command {
	var strategy string
	var topK int

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Show the chunks selected for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if strategy != "" {
				cfg.RAG.Strategy = strategy
			}
			if topK > 0 {
				cfg.RAG.TopK = topK
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			pipeline, err := rag.NewFromConfig(cfg, nil)
			if err != nil {
				return err
			}
			retriever := pipeline.Retriever()
			ranking, err := retriever.Rank(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ranking.Fallback != "" {
				fmt.Fprintf(out, "No chunk matched; using the first %d characters of the corpus.\n", len([]rune(ranking.Fallback)))
				return nil
			}
			if len(ranking.Hits) == 0 {
				fmt.Fprintln(out, "No content loaded.")
				return nil
			}
			rows := make([][]string, len(ranking.Hits))
			for i, h := range ranking.Hits {
				rows[i] = []string{
					strconv.Itoa(i + 1),
					strconv.Itoa(h.Chunk),
					strconv.FormatFloat(h.Score, 'f', 3, 64),
					helper.Ellipsize(strings.Join(strings.Fields(h.Text), " "), 80),
				}
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Rank", "Chunk", "Score", "Text"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "strategy: %s\n", retriever.Strategy())
			return nil
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", fmt.Sprintf("Override the retrieval strategy (%s or %s)", config.StrategyEmbedding, config.StrategyLexical))
	cmd.Flags().IntVarP(&topK, "top", "k", 0, "Override the number of chunks")
	return cmd
}
