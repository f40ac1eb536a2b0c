package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bher20/carparkmanager/internal/carparks"
	"github.com/bher20/carparkmanager/internal/cron"
	"github.com/bher20/carparkmanager/internal/storage"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Run one refresh cycle and print the snapshot as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			store := storage.NewMemory()
			defer store.Close()

			sched, err := cron.New(carparks.NewClient(cfg.Feed), store, cfg.Scheduler(), log)
			if err != nil {
				return fmt.Errorf("create scheduler: %w", err)
			}
			snap, err := sched.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			log.Debug("refresh: fetched snapshot", zap.Int("records", snap.Len()))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}
