package main

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"party-avatar/internal/content"
	"party-avatar/internal/parser"
)

func newCorpusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "corpus",
		Short: "List the documents that make up the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			loader := content.NewLoader(cfg.Content.Paths, cfg.Content.MaxChars, parser.Options{
				MarkdownPlain: cfg.Content.MarkdownPlain,
			})
			docs, err := loader.Documents(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(out, "No documents found.")
				return nil
			}
			rows := make([][]string, len(docs))
			for i, d := range docs {
				rows[i] = []string{d.Name, d.Path, strconv.Itoa(utf8.RuneCountInString(d.Body))}
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Document", "Path", "Chars"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))

			corpus, err := loader.Load(cmd.Context())
			if err != nil {
				return err
			}
			chunks := parser.ChunkText(corpus, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
			fmt.Fprintf(out, "corpus: %d chars, %d chunks of %d (overlap %d)\n",
				utf8.RuneCountInString(corpus), len(chunks), cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
			return nil
		},
	}
}
