package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/devilkun/joplin/internal/config"
	"github.com/devilkun/joplin/internal/fileapi/fileapitest"
	"github.com/devilkun/joplin/internal/lock"
	"github.com/devilkun/joplin/internal/migration"
	"github.com/devilkun/joplin/internal/model"
	"github.com/devilkun/joplin/internal/store"
	"github.com/devilkun/joplin/internal/sync"
	"github.com/devilkun/joplin/internal/uploader"
)

func newSyncCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync cycle against the configured target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "not yet supported by the engine; reserved for a future planning pass")

	return cmd
}

func runSync(ctx context.Context, dryRun bool) error {
	if dryRun {
		return fmt.Errorf("synctl: --dry-run is not yet implemented")
	}

	logger := newLogger()

	cfg, err := config.Load(flagConfigPath, logger)
	if err != nil {
		logger.Warn("no config file found, using defaults", "error", err.Error())
		cfg = config.DefaultConfig()
	}

	resolved, err := config.Resolve(cfg, flagProfile)
	if err != nil {
		return fmt.Errorf("synctl: resolve profile: %w", err)
	}

	st, err := store.NewSQLiteStore(ctx, "synctl.db", logger)
	if err != nil {
		return fmt.Errorf("synctl: open store: %w", err)
	}
	defer st.Close()

	client := fileapitest.New(1)

	locks := lock.New(client, mustDuration(resolved.Locks.SyncLockTTL), logger)
	migrationHandler := migration.New(client, locks, logger)

	status, err := migrationHandler.CheckCanSync(ctx)
	if err != nil {
		return fmt.Errorf("synctl: check sync target: %w", err)
	}

	if status.NeedsUpgrade {
		if err := migrationHandler.Upgrade(ctx, resolved.ClientID, migration.CurrentVersion); err != nil {
			return fmt.Errorf("synctl: upgrade target: %w", err)
		}
	}

	up := uploader.New(client, nil, logger)

	engine := sync.New(sync.Config{
		Client:                client,
		Store:                 st,
		Locks:                 locks,
		Migration:             migrationHandler,
		Uploader:              up,
		ClientID:              resolved.ClientID,
		AppType:               resolved.AppType,
		WipeOutFailSafe:       resolved.Safety.WipeOutFailSafe,
		MaxResourceSizeMobile: 100 * 1024 * 1024,
	}, logger)

	outCtx, err := engine.Start(ctx, sync.Options{
		OnProgress: func(r model.Report) {
			printReport(r)
		},
	})
	if err != nil {
		return fmt.Errorf("synctl: sync failed: %w", err)
	}

	_ = outCtx

	return nil
}

func printReport(r model.Report) {
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(r)
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 5 * time.Minute
	}

	return d
}
