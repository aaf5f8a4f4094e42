package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"langclash/internal/backend"
	"langclash/internal/config"
	"langclash/internal/content"
	"langclash/internal/database"
	"langclash/internal/delivery"
	"langclash/internal/models"
	"langclash/internal/repository"
	"langclash/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "telemetryq",
		Short:         "Inspect and drain the LangClash telemetry queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newListCmd())
	root.AddCommand(newRetryCmd())
	root.AddCommand(newPurgeCmd())
	root.AddCommand(newStoresCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// app is the queue as the server sees it, opened from the same environment
type app struct {
	cfg   *config.Config
	db    *database.DB
	store delivery.Store
	queue *delivery.Queue
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	var dbtx database.DBTX
	if cfg.QueueBackend == "sql" {
		a.db, err = database.InitializeWithConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := a.db.RunMigrations(cfg.MigrationsPath); err != nil {
			a.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		dbtx = a.db
	}

	store, err := service.NewQueueStore(cfg.QueueBackend, cfg.QueueName, cfg.QueueFile, dbtx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	client := backend.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, nil)
	a.queue = delivery.NewQueue(store, client, delivery.Options{
		Capacity:   cfg.QueueCapacity,
		Retention:  cfg.QueueRetention,
		MaxRetries: cfg.QueueMaxRetries,
	}, nil)
	return a, nil
}

func newListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued telemetry submissions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.queue.Pending(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			for i, item := range items {
				owner := item.Owner
				if owner == "" {
					owner = "-"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\towner=%s\tretries=%d\t%d bytes\n",
					i, item.EnqueuedAt.Format(time.RFC3339), owner, item.RetryCount, len(item.Payload))
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d pending in %s queue\n", len(items), a.cfg.QueueBackend)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func newRetryCmd() *cobra.Command {
	var token string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Resend every queued submission",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if token == "" {
				token = a.cfg.CollectorToken
			}
			if token == "" {
				return fmt.Errorf("a token is required: pass --token or set COLLECTOR_TOKEN")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			report, err := a.queue.RetryAll(ctx, token)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "attempted=%d delivered=%d requeued=%d dropped=%d\n",
				report.Attempted, report.Delivered, report.Requeued, report.Dropped)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token for the collector (defaults to COLLECTOR_TOKEN)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall time limit for the sweep")
	return cmd
}

func newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop every queued submission",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.queue.Purge(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "purged %d submissions\n", n)
			return nil
		},
	}
}

func newStoresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List durable stores in the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if a.db == nil {
				return fmt.Errorf("stores needs QUEUE_BACKEND=sql, got %s", a.cfg.QueueBackend)
			}
			names, err := repository.ListStores(cmd.Context(), a.db)
			if err != nil {
				return err
			}
			for _, name := range names {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the queue into a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if output == "" {
				output = fmt.Sprintf("telemetry_%s.json", time.Now().Format("20060102_150405"))
			}
			items, err := a.store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if err := delivery.NewFileStore(output).Save(cmd.Context(), items); err != nil {
				return fmt.Errorf("export to %s: %w", output, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d submissions to %s\n", len(items), filepath.Clean(output))
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "output file (default: telemetry_YYYYMMDD_HHMMSS.json)")
	return cmd
}

func newImportCmd() *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load submissions from a JSON export into the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return fmt.Errorf("input file: %w", err)
			}
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			imported, err := delivery.NewFileStore(args[0]).Load(cmd.Context())
			if err != nil {
				return err
			}
			var items []models.QueuedSubmission
			if !replace {
				if items, err = a.store.Load(cmd.Context()); err != nil {
					return err
				}
			}
			items = append(items, imported...)
			if over := len(items) - a.cfg.QueueCapacity; over > 0 {
				items = items[over:]
			}
			if err := a.store.Save(cmd.Context(), items); err != nil {
				return err
			}

			// Pending drops anything past retention or the retry cap
			pending, err := a.queue.Pending(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d submissions, %d pending\n", len(imported), len(pending))
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "drop the current queue before importing")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <contest.yaml>...",
		Short: "Check contest definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				contest, err := content.LoadContest(path)
				if err != nil {
					failed++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok   %s: %s (%d levels, %d languages)\n",
					path, contest.ID, len(contest.Levels), len(contest.Languages))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d contest files invalid", failed, len(args))
			}
			return nil
		},
	}
}
