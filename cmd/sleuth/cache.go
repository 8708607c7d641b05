package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/sleuth/internal/app"
	"github.com/MrSnakeDoc/sleuth/internal/config"
	"github.com/MrSnakeDoc/sleuth/internal/logger"
	redisstore "github.com/MrSnakeDoc/sleuth/internal/store/redis"
	"github.com/MrSnakeDoc/sleuth/internal/utils"
)

var errNoRedis = errors.New("redis is not configured or unreachable (set SLEUTH_REDIS_ADDR)")

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the Redis proxy cache",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List cached proxy candidate lists",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd, func(store *redisstore.Store) error {
					sources, err := store.CachedSources(cmd.Context())
					if err != nil {
						return err
					}
					renderSources(cmd.OutOrStdout(), sources)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "flush",
			Short: "Drop cached proxy candidates and egress lookups",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd, func(store *redisstore.Store) error {
					if err := store.FlushCache(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "✅ cache flushed")
					return nil
				})
			},
		},
	)
	return cmd
}

func withStore(cmd *cobra.Command, fn func(*redisstore.Store) error) error {
	cfg := config.Load()
	log := logger.New("warn", cfg.PrettyLog)

	client := app.ConnectRedis(cfg, log)
	if client == nil {
		return errNoRedis
	}
	defer utils.CloseLogged(client, "redis", log)

	return fn(redisstore.NewStore(client))
}

func renderSources(w io.Writer, sources []redisstore.CachedSource) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Source", "Candidates", "Expires in"})
	for _, s := range sources {
		t.AppendRow(table.Row{s.Source, s.Count, s.TTL})
	}
	t.AppendFooter(table.Row{"Lists", len(sources), ""})
	t.Render()
}
