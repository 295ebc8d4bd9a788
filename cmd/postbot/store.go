package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"postbot/internal/config"
	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

// storageSettings reads only what the offline commands need, so a
// missing bot token is not an error here.
func storageSettings(path string) (storage.Config, error) {
	cfg, err := config.NewManager(path).Parse()
	if err != nil {
		return storage.Config{}, fmt.Errorf("load config: %w", err)
	}
	s, err := config.Resolve(cfg)
	if err != nil && !errors.Is(err, config.ErrNoBotToken) {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      s.StorageDriver,
		Path:        s.StoragePath,
		DSN:         s.StorageDSN,
		BusyTimeout: s.BusyTimeout,
	}, nil
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := storageSettings(opts.configPath)
			if err != nil {
				return err
			}
			if err := storage.Migrate(sc, logx.Nop()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", sc.Driver)
			return nil
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print usage counters from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := storageSettings(opts.configPath)
			if err != nil {
				return err
			}
			st, err := storage.Open(sc, logx.Nop())
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "users:               %d\n", stats.Users)
			fmt.Fprintf(out, "users with message:  %d\n", stats.UsersWithDraft)
			fmt.Fprintf(out, "active accounts:     %d\n", stats.ActiveAccounts)
			fmt.Fprintf(out, "active destinations: %d\n", stats.ActiveDestinations)
			return nil
		},
	}
}
