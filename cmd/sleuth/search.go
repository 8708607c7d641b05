package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/sleuth/internal/app"
	"github.com/MrSnakeDoc/sleuth/internal/config"
	"github.com/MrSnakeDoc/sleuth/internal/domain"
	"github.com/MrSnakeDoc/sleuth/internal/logger"
	"github.com/MrSnakeDoc/sleuth/internal/search"
)

const (
	urlColumnWidth    = 60
	reasonColumnWidth = 40
)

type searchFlags struct {
	catalog string
	limit   int
	all     bool
	proxy   bool
	timeout time.Duration
	verbose bool
}

func newSearchCmd() *cobra.Command {
	var f searchFlags

	cmd := &cobra.Command{
		Use:   "search <username>",
		Short: "Probe every catalog platform for a username",
		Long: `Search probes the catalog for one username and prints a table of results.

Examples:
  # Found profiles only
  sleuth search alice --catalog configs/platforms.json

  # First 10 platforms, every verdict, through the proxy pool
  sleuth search alice --limit 10 --all --proxy`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], f)
		},
	}

	cmd.Flags().StringVarP(&f.catalog, "catalog", "c", "", "catalog file (overrides SLEUTH_CATALOG_FILE)")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "probe only the first N platforms (0 = all)")
	cmd.Flags().BoolVarP(&f.all, "all", "a", false, "show every result, not only found profiles")
	cmd.Flags().BoolVar(&f.proxy, "proxy", false, "route probes through the proxy pool")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "abort the whole search after this long (0 = no limit)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log probe activity to stderr")
	return cmd
}

func runSearch(cmd *cobra.Command, username string, f searchFlags) error {
	if f.catalog != "" {
		if err := os.Setenv("SLEUTH_CATALOG_FILE", f.catalog); err != nil {
			return err
		}
	}
	cfg := config.Load()
	cfg.LogLevel = "warn"
	if f.verbose {
		cfg.LogLevel = "debug"
	}
	if f.proxy {
		cfg.ProxyEnabled = true
	}
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)

	engine, err := app.NewEngine(cfg, log, nil)
	if err != nil {
		return err
	}
	defer engine.Transport.CloseIdleConnections()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if cfg.ProxyEnabled {
		if _, err := engine.Pool.EnsurePopulated(ctx); err != nil {
			log.Warn("proxy pool could not be filled", logger.Error(err))
		}
		if !engine.Pool.SetEnabled(true) {
			fmt.Fprintln(cmd.ErrOrStderr(), "no proxies available, probing directly")
		}
	}

	events, err := engine.Orchestrator.Stream(ctx, username, f.limit)
	if err != nil {
		return err
	}

	total := len(engine.Catalog.Limit(f.limit))
	return consume(cmd.OutOrStdout(), cmd.ErrOrStderr(), events, total, f.all)
}

// consume prints progress for each result and the table once the search ends.
// An interrupted search still prints what completed.
func consume(out, progress io.Writer, events <-chan search.Event, total int, all bool) error {
	done := 0
	var partial []domain.Result

	for ev := range events {
		switch ev.Type {
		case search.EventResult:
			done++
			partial = append(partial, *ev.Result)
			fmt.Fprintf(progress, "\r[%d/%d] %-24s %s", done, total, truncate(ev.Result.Site, 24), ev.Result.Verdict)
		case search.EventComplete:
			fmt.Fprintln(progress)
			renderOutcome(out, ev.Outcome, all)
			return nil
		case search.EventError:
			fmt.Fprintln(progress)
			renderPartial(out, ev.Outcome, partial, all)
			if errors.Is(ev.Err, context.DeadlineExceeded) || errors.Is(ev.Err, context.Canceled) {
				return fmt.Errorf("search interrupted after %d of %d platforms: %w", done, total, ev.Err)
			}
			return ev.Err
		}
	}
	renderPartial(out, nil, partial, all)
	return fmt.Errorf("search ended without a result after %d of %d platforms", done, total)
}

// renderPartial prints outcome, or what was streamed so far when it is nil.
func renderPartial(out io.Writer, outcome *domain.Outcome, partial []domain.Result, all bool) {
	if outcome == nil && len(partial) > 0 {
		outcome = domain.NewOutcome("", "", partial)
	}
	if outcome != nil {
		renderOutcome(out, outcome, all)
	}
}

// renderOutcome prints found profiles (or every result when all is set),
// found first, then by platform name.
func renderOutcome(w io.Writer, outcome *domain.Outcome, all bool) {
	rows := outcome.Found
	if all {
		rows = outcome.All
	}
	rows = slices.Clone(rows)
	slices.SortFunc(rows, func(a, b domain.Result) int {
		if a.Found() != b.Found() {
			if a.Found() {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.Site), strings.ToLower(b.Site))
	})

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, WidthMax: urlColumnWidth},
		{Number: 6, WidthMax: reasonColumnWidth},
	})
	t.AppendHeader(table.Row{"#", "Platform", "State", "Status", "URL", "Details", "Latency"})

	for i, r := range rows {
		t.AppendRow(table.Row{i + 1, r.Site, r.Verdict, statusText(r), r.URL, details(r), latencyText(r)})
	}

	t.AppendFooter(table.Row{"", "Found", outcome.TotalFound, "Checked", outcome.TotalChecked, "", ""})
	t.Render()
}

func statusText(r domain.Result) string {
	if r.StatusCode == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", r.StatusCode)
}

func latencyText(r domain.Result) string {
	if r.LatencyMS == nil {
		return "-"
	}
	return fmt.Sprintf("%.0fms", *r.LatencyMS)
}

func details(r domain.Result) string {
	parts := make([]string, 0, 3)
	if r.DisplayName != "" {
		parts = append(parts, r.DisplayName)
	}
	if r.Reason != "" {
		parts = append(parts, r.Reason)
	}
	if r.ViaProxy {
		parts = append(parts, "via "+r.ProxyID)
	}
	return strings.Join(parts, " · ")
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
