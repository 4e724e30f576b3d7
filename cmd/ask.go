package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"party-avatar/internal/helper"
	"party-avatar/internal/rag"
)

func newAskCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			pipeline, err := rag.NewFromConfig(cfg, nil)
			if err != nil {
				return err
			}
			answer, err := pipeline.Answer(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return helper.PrettyPrint(out, answer)
			}
			for _, m := range answer.Messages {
				fmt.Fprintf(out, "[%s/%s] %s\n", m.FacialExpression, m.Animation, m.Text)
			}
			if answer.Provider != "" {
				fmt.Fprintf(out, "\n(%s, %s)\n", answer.Provider, answer.Model)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer as JSON")
	return cmd
}
