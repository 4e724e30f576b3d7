package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"party-avatar/internal/config"
	"party-avatar/internal/db"
	"party-avatar/internal/rag"
	"party-avatar/internal/server"
	"party-avatar/internal/watcher"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port int
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("watch") {
				cfg.Server.WatchContent = watch
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 3000, "Port to listen on")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reset the index when content files change")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	recorder, closeDB, err := openRecorder(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	pipeline, err := rag.NewFromConfig(cfg, recorder)
	if err != nil {
		return err
	}
	log.Info().
		Str("strategy", pipeline.Retriever().Strategy()).
		Strs("content", cfg.Content.Paths).
		Str("llm", cfg.LLM.Provider).
		Msg("Pipeline ready")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.NewServer(pipeline, cfg.Server.Port).Run(gctx)
	})
	if cfg.Server.WatchContent {
		w, err := watcher.New(cfg.Content.Paths, watcher.DefaultDebounce, pipeline.ResetIndex)
		switch {
		case errors.Is(err, watcher.ErrNothingToWatch):
			log.Warn().Msg("Content watcher disabled, no content path exists")
		case err != nil:
			return err
		default:
			g.Go(func() error { return w.Run(gctx) })
		}
	}
	return g.Wait()
}

// openRecorder connects the answer log when a database is configured. A
// missing database URL disables the log.
func openRecorder(ctx context.Context, cfg *config.Config) (rag.Recorder, func(), error) {
	if cfg.Database.URL == "" {
		return nil, func() {}, nil
	}
	sqldb, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	bunDB := db.NewDB(sqldb, cfg.Database.Debug)
	if err := db.InitDB(ctx, bunDB); err != nil {
		_ = bunDB.Close()
		return nil, nil, err
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("Answer log enabled")
	return db.NewAnswerStore(bunDB), func() { _ = bunDB.Close() }, nil
}
