package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gurre/zfs3backup/localcatalog"
	"github.com/gurre/zfs3backup/metrics"
	"github.com/gurre/zfs3backup/pairmanager"
)

func newRestoreCmd(gf *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <filesystem@snapshot>",
		Short: "Restore a snapshot and its missing ancestors from the object catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gf.loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			client, err := newS3Client(ctx, cfg)
			if err != nil {
				return err
			}

			mtr := metrics.New()
			mgr := pairmanager.New(client, localcatalog.New(), pairmanager.Options{
				Bucket:      cfg.Bucket,
				Prefix:      cfg.Prefix,
				Concurrency: cfg.Concurrency,
				MaxRetries:  cfg.MaxRetries,
				DryRun:      cfg.DryRun,
				Metrics:     mtr,
			})

			runErr := mgr.Restore(ctx, args[0], force)
			fmt.Fprintln(cmd.OutOrStdout(), mtr.GenerateReport())
			if runErr != nil {
				return fmt.Errorf("restore failed: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "restore into a dataset that already exists locally, rolling it back with zfs recv -F")
	return cmd
}
