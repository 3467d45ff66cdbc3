package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tempo/internal/bootstrap"
	timerservice "tempo/internal/modules/timer/service"
	"tempo/internal/platform/clock"
	"tempo/internal/platform/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dataDir string

	root := &cobra.Command{
		Use:           "tempo",
		Short:         "Session timer with offline-first sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dataDir, "data", defaultDataDir(), "data directory")

	root.AddCommand(newTUICmd(&dataDir))
	root.AddCommand(newSessionCmd(&dataDir))
	root.AddCommand(newHistoryCmd(&dataDir))
	root.AddCommand(newGoalCmd(&dataDir))
	root.AddCommand(newSyncCmd(&dataDir))
	return root
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tempo"
	}
	return filepath.Join(home, ".tempo")
}

func loadApp(dataDir string) (*bootstrap.App, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg)
}

// loadPrimed builds the app and projects the cached mirror so one-shot
// commands see the last known state without waiting for the network.
func loadPrimed(ctx context.Context, dataDir string) (*bootstrap.App, error) {
	app, err := loadApp(dataDir)
	if err != nil {
		return nil, err
	}
	if err := app.Prime(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func newTUICmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run the tempo terminal UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := app.Prime(ctx); err != nil {
				return err
			}
			app.StartSync(ctx)
			return bootstrap.RunTUI(app)
		},
	}
}

func newSessionCmd(dataDir *string) *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Control the active session"}

	var category, notes string
	startCmd := &cobra.Command{
		Use:   "start <title>",
		Short: "Start a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadPrimed(cmd.Context(), *dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.SessionCLI.Start(cmd.Context(), args[0], category, notes)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "started %q at %s\n", out.Title, out.StartedAt.Local().Format("15:04:05"))
			return nil
		},
	}
	startCmd.Flags().StringVar(&category, "category", "", "session category")
	startCmd.Flags().StringVar(&notes, "notes", "", "initial notes")

	breakCmd := &cobra.Command{
		Use:   "break",
		Short: "Toggle the break state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadPrimed(cmd.Context(), *dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.SessionCLI.ToggleBreak(cmd.Context())
			if err != nil {
				return err
			}
			if !out.Active {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no active session")
				return nil
			}
			if out.OnBreak {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "break started")
			} else {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "break ended")
			}
			return nil
		},
	}

	noteCmd := &cobra.Command{
		Use:   "note <text>",
		Short: "Replace the session notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadPrimed(cmd.Context(), *dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.SessionCLI.UpdateDetails(cmd.Context(), nil, &args[0])
			if err != nil {
				return err
			}
			if !out.Active {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no active session")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "notes updated")
			return nil
		},
	}

	endCmd := &cobra.Command{
		Use:   "end",
		Short: "End the active session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadPrimed(cmd.Context(), *dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.SessionCLI.End(cmd.Context())
			if err != nil {
				return err
			}
			focus := time.Duration(out.TotalFocusMs) * time.Millisecond
			suffix := ""
			if out.Queued {
				suffix = " (queued for sync)"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ended %q: %s focused%s\n", out.Title, focus.Round(time.Second), suffix)
			return nil
		},
	}

	var watch bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadPrimed(cmd.Context(), *dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.SessionCLI.Status(cmd.Context())
			if err != nil {
				return err
			}
			if !out.Active {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no active session")
				return nil
			}
			if watch {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				ticker := timerservice.NewTicker(clock.SystemClock{}, nil)
				watchSession(ctx, cmd.OutOrStdout(), ticker, out)
				return nil
			}
			state := "focused"
			if out.OnBreak {
				state = "on break"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%q since %s (%s)\n", out.Title, out.StartedAt.Local().Format("15:04:05"), state)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&watch, "watch", false, "keep a live clock running until interrupted")

	session.AddCommand(startCmd, breakCmd, noteCmd, endCmd, statusCmd)
	return session
}

func newHistoryCmd(dataDir *string) *cobra.Command {
	history := &cobra.Command{Use: "history", Short: "Browse and edit finalized sessions"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List finalized sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			records, err := app.HistoryCLI.ListRecords(cmd.Context())
			if err != nil {
				return err
			}
			for _, rec := range records {
				focus := time.Duration(rec.TotalFocusMs) * time.Millisecond
				marker := ""
				if rec.Pending {
					marker = " ~"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  %s%s\n",
					rec.ID, rec.StartedAt.Local().Format("2006-01-02 15:04"), focus.Round(time.Second), rec.Title, marker)
			}
			return nil
		},
	}

	var title, notes string
	editCmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a finalized session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			var titlePtr, notesPtr *string
			if cmd.Flags().Changed("title") {
				titlePtr = &title
			}
			if cmd.Flags().Changed("notes") {
				notesPtr = &notes
			}
			out, err := app.HistoryCLI.EditRecord(cmd.Context(), args[0], titlePtr, notesPtr)
			if err != nil {
				return err
			}
			printMutation(cmd, "updated", out.ID, out.Queued)
			return nil
		},
	}
	editCmd.Flags().StringVar(&title, "title", "", "new title")
	editCmd.Flags().StringVar(&notes, "notes", "", "new notes")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a finalized session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.HistoryCLI.DeleteRecord(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printMutation(cmd, "deleted", out.ID, out.Queued)
			return nil
		},
	}

	history.AddCommand(listCmd, editCmd, deleteCmd)
	return history
}

func newGoalCmd(dataDir *string) *cobra.Command {
	goal := &cobra.Command{Use: "goal", Short: "Manage weekly focus goals"}

	var category string
	var hours float64
	setCmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Create a weekly goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			targetMs := int64(hours * float64(time.Hour/time.Millisecond))
			out, err := app.HistoryCLI.SetGoal(cmd.Context(), args[0], category, targetMs)
			if err != nil {
				return err
			}
			printMutation(cmd, "goal saved", out.ID, out.Queued)
			return nil
		},
	}
	setCmd.Flags().StringVar(&category, "category", "", "goal category")
	setCmd.Flags().Float64Var(&hours, "hours", 5, "target hours per week")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List weekly goals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			goals, err := app.HistoryCLI.ListGoals(cmd.Context())
			if err != nil {
				return err
			}
			for _, g := range goals {
				target := time.Duration(g.TargetWeekMs) * time.Millisecond
				marker := ""
				if g.Pending {
					marker = " ~"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s/week%s\n", g.ID, g.Name, target.Round(time.Minute), marker)
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a weekly goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.HistoryCLI.DeleteGoal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printMutation(cmd, "goal deleted", out.ID, out.Queued)
			return nil
		},
	}

	goal.AddCommand(setCmd, listCmd, deleteCmd)
	return goal
}

func newSyncCmd(dataDir *string) *cobra.Command {
	sync := &cobra.Command{Use: "sync", Short: "Inspect and drive the offline queue"}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show queued mutations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			items, err := app.Outbox.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "queue empty")
				return nil
			}
			for _, item := range items {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%4d  %-6s %s/%s  %s\n",
					item.Seq, item.OpType, item.Collection, item.Key, item.CreatedAt.Local().Format("15:04:05"))
			}
			return nil
		},
	}

	drainCmd := &cobra.Command{
		Use:   "drain",
		Short: "Replay queued mutations now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataDir)
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.Outbox.Drain(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "drained %d, %d remaining\n", out.Drained, out.Remaining)
			return nil
		},
	}

	sync.AddCommand(statusCmd, drainCmd)
	return sync
}

func printMutation(cmd *cobra.Command, verb, id string, queued bool) {
	suffix := ""
	if queued {
		suffix = " (queued for sync)"
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s%s\n", verb, id, suffix)
}
