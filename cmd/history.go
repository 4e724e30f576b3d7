package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"party-avatar/internal/db"
	"party-avatar/internal/helper"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently answered questions from the answer log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("history requires DATABASE_URL")
			}
			sqldb, err := db.ConnectDB(&cfg.Database)
			if err != nil {
				return err
			}
			bunDB := db.NewDB(sqldb, cfg.Database.Debug)
			defer bunDB.Close()

			records, err := db.NewAnswerStore(bunDB).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			rows := make([][]string, len(records))
			for i, r := range records {
				answer := r.Error
				if len(r.Messages) > 0 {
					texts := make([]string, len(r.Messages))
					for j, m := range r.Messages {
						texts[j] = m.Text
					}
					answer = strings.Join(texts, " ")
				}
				rows[i] = []string{
					r.CreatedAt.Local().Format("2006-01-02 15:04"),
					helper.Ellipsize(r.Question, 40),
					r.Provider,
					helper.Ellipsize(answer, 60),
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Time", "Question", "Provider", "Answer"},
				rows,
				nil,
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of answers to show")
	return cmd
}
