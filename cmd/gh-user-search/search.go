package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/gh-user-search/pkg/logging"
	"github.com/Sternrassler/gh-user-search/pkg/search"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Print matching users and exit",
	Long: `Fetch pages of matching users and print them to stdout, one user per line.
Logs go to stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var (
	searchPages  int
	searchFormat string
)

func init() {
	searchCmd.Flags().IntVar(&searchPages, "pages", 1, "Number of pages to fetch, 0 for all")
	searchCmd.Flags().StringVar(&searchFormat, "format", "tsv", "Output format: tsv or json")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if searchPages < 0 {
		return fmt.Errorf("pages must not be negative (got %d)", searchPages)
	}

	write, err := itemWriter(searchFormat, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: os.Stderr})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = collect(ctx, a.machine, a.client, args[0], searchPages, write)
	return err
}

// collect runs a session for query and hands every newly arrived slice of
// results to emit. It stops after maxPages pages (0 = all), at the last page,
// or on the first failed fetch. It returns the number of pages applied.
func collect(ctx context.Context, machine *search.Machine, transport search.Transport, query string, maxPages int, emit func([]search.Item) error) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snapshots := make(chan search.Snapshot, 16)
	session := search.NewSession(machine, transport, func(s search.Snapshot) {
		select {
		case snapshots <- s:
		case <-ctx.Done():
		}
	})

	runErr := make(chan error, 1)
	go func() { runErr <- session.Run(ctx) }()
	defer func() {
		cancel()
		<-runErr
	}()

	if err := session.Search(ctx, query); err != nil {
		return 0, err
	}

	pages, emitted := 0, 0
	flush := func(results []search.Item) error {
		if len(results) <= emitted {
			return nil
		}
		fresh := results[emitted:]
		emitted = len(results)
		return emit(fresh)
	}

	for {
		var snap search.Snapshot
		select {
		case snap = <-snapshots:
		case <-ctx.Done():
			return pages, ctx.Err()
		}

		switch st := snap.State.(type) {
		case search.InFlight:
			continue

		case search.Idle:
			pages++
			if err := flush(snap.Results); err != nil {
				return pages, err
			}
			if st.Pending == nil || (maxPages > 0 && pages >= maxPages) {
				return pages, nil
			}
			if err := session.More(ctx); err != nil {
				return pages, err
			}

		case search.Exhausted:
			pages++
			return pages, flush(snap.Results)

		case search.Failed:
			return pages, st.Err

		default:
			panic(fmt.Sprintf("unexpected state %T", st))
		}
	}
}

// itemWriter returns an emit function printing items in format.
func itemWriter(format string, w io.Writer) (func([]search.Item) error, error) {
	switch format {
	case "tsv":
		return func(items []search.Item) error {
			for _, item := range items {
				if _, err := fmt.Fprintf(w, "%d\t%s\t%s\n", item.ID, item.Name, item.AvatarURL); err != nil {
					return err
				}
			}
			return nil
		}, nil
	case "json":
		enc := json.NewEncoder(w)
		return func(items []search.Item) error {
			for _, item := range items {
				if err := enc.Encode(item); err != nil {
					return err
				}
			}
			return nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want tsv or json)", format)
	}
}
