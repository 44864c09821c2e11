package main

import (
	"fmt"
	"io"

	"github.com/Sternrassler/gh-user-search/internal/tui"
	"github.com/Sternrassler/gh-user-search/pkg/logging"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var tuiLogFile string

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The terminal belongs to the program; logs only go to a file.
	if tuiLogFile != "" {
		_, closer, err := logging.SetupFile(logging.Config{Level: cfg.LogLevel}, tuiLogFile)
		if err != nil {
			return err
		}
		defer closer.Close()
	} else {
		logging.Setup(logging.Config{Level: logging.LevelDisabled, Output: io.Discard})
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	query := ""
	if len(args) > 0 {
		query = args[0]
	}

	model := tui.NewModel(a.machine, a.client, tui.Options{Query: query, Context: ctx})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}

	return nil
}
