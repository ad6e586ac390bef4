package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gurre/zfs3backup/localcatalog"
	"github.com/gurre/zfs3backup/metrics"
	"github.com/gurre/zfs3backup/pairmanager"
)

func newBackupCmd(gf *globalFlags) *cobra.Command {
	var (
		filesystem string
		full       bool
		compressor string
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the latest local snapshot of a filesystem",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filesystem == "" {
				return fmt.Errorf("--filesystem is required")
			}
			cfg, err := gf.loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			client, err := newS3Client(ctx, cfg)
			if err != nil {
				return err
			}

			fsCfg := cfg.FilesystemDefaults(filesystem)
			comp := fsCfg.Compressor
			if compressor != "" {
				comp = compressor
			}

			local := localcatalog.New()
			latest, err := local.Latest(ctx, filesystem, fsCfg.SnapshotPrefix)
			if err != nil {
				var soft *localcatalog.SoftError
				if errors.As(err, &soft) {
					log.Warn().Err(soft).Msg("nothing to back up")
					return nil
				}
				return err
			}

			mtr := metrics.New()
			mgr := pairmanager.New(client, local, pairmanager.Options{
				Bucket:         cfg.Bucket,
				Prefix:         cfg.Prefix,
				SnapshotPrefix: fsCfg.SnapshotPrefix,
				Compressor:     comp,
				Concurrency:    cfg.Concurrency,
				MaxRetries:     cfg.MaxRetries,
				StorageClass:   cfg.StorageClass,
				DryRun:         cfg.DryRun,
				Metrics:        mtr,
			})

			var runErr error
			if full {
				runErr = mgr.BackupFull(ctx, latest)
			} else {
				locals, err := local.List(ctx, filesystem, fsCfg.SnapshotPrefix)
				if err != nil {
					return err
				}
				runErr = mgr.BackupIncremental(ctx, latest, locals)
				var integrity *pairmanager.IntegrityError
				if errors.As(runErr, &integrity) {
					runErr = fmt.Errorf("backup aborted, chain is broken: %w (use --full to start a new chain)", integrity)
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), mtr.GenerateReport())
			return runErr
		},
	}

	cmd.Flags().StringVar(&filesystem, "filesystem", "", "ZFS filesystem to back up")
	cmd.Flags().BoolVar(&full, "full", false, "force a full snapshot instead of an incremental one")
	cmd.Flags().StringVar(&compressor, "compressor", "", "compressor label (overrides config), e.g. pigz1, pigz4, none")

	return cmd
}
