package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gurre/zfs3backup/lineage"
	"github.com/gurre/zfs3backup/localcatalog"
	"github.com/gurre/zfs3backup/remotecatalog"
)

func newStatusCmd(gf *globalFlags) *cobra.Command {
	var filesystem string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List local and remote snapshots and flag broken lineage",
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

			remote := remotecatalog.New(client, cfg.Bucket, cfg.Prefix)
			remotes, err := remote.List(ctx)
			if err != nil {
				return fmt.Errorf("list remote catalog: %w", err)
			}
			lineage.Resolve(remotes)

			snapshotPrefix := ""
			if filesystem != "" {
				snapshotPrefix = cfg.FilesystemDefaults(filesystem).SnapshotPrefix
			}
			local := localcatalog.New()
			locals, err := local.List(ctx, filesystem, snapshotPrefix)
			if err != nil {
				return fmt.Errorf("list local catalog: %w", err)
			}

			names := map[string]bool{}
			for n := range locals {
				names[n] = true
			}
			for n, r := range remotes {
				if filesystem == "" || r.Filesystem == filesystem {
					names[n] = true
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "SNAPSHOT\tLOCAL\tREMOTE\tHEALTH")
			for name := range names {
				_, hasLocal := locals[name]
				r, hasRemote := remotes[name]
				health := "-"
				if hasRemote {
					health = r.Health().String()
					if reason := r.ReasonBroken(); reason != "" {
						health = reason
					}
				}
				fmt.Fprintf(tw, "%s\t%v\t%v\t%s\n", name, hasLocal, hasRemote, health)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&filesystem, "filesystem", "", "limit to one ZFS filesystem")
	return cmd
}
