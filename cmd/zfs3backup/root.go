package main

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gurre/zfs3backup/awsx"
	"github.com/gurre/zfs3backup/config"
)

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	bucket     string
	prefix     string
	region     string
	endpoint   string
	profile    string
	dryRun     bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	gf := &globalFlags{}

	root := &cobra.Command{
		Use:           "zfs3backup",
		Short:         "Back up and restore ZFS snapshots to an S3-compatible object store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if gf.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	root.PersistentFlags().StringVar(&gf.configPath, "config", "", "path to config file (default ~/.zfs3backup.toml)")
	root.PersistentFlags().StringVar(&gf.bucket, "bucket", "", "S3 bucket (overrides config)")
	root.PersistentFlags().StringVar(&gf.prefix, "s3-prefix", "", "S3 key prefix (overrides config)")
	root.PersistentFlags().StringVar(&gf.region, "region", "", "AWS region (overrides config)")
	root.PersistentFlags().StringVar(&gf.endpoint, "endpoint", "", "S3-compatible endpoint override")
	root.PersistentFlags().StringVar(&gf.profile, "aws-profile", "", "AWS credentials profile")
	root.PersistentFlags().BoolVar(&gf.dryRun, "dry-run", false, "describe actions without performing them")
	root.PersistentFlags().BoolVarP(&gf.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newStatusCmd(gf))
	root.AddCommand(newBackupCmd(gf))
	root.AddCommand(newRestoreCmd(gf))

	return root
}

// loadConfig merges the persistent flags onto the file/env-derived config,
// flags taking priority since they are the most specific override.
func (gf *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(gf.configPath)
	if err != nil {
		return nil, err
	}
	if gf.bucket != "" {
		cfg.Bucket = gf.bucket
	}
	if gf.prefix != "" {
		cfg.Prefix = gf.prefix
	}
	if gf.region != "" {
		cfg.Region = gf.region
	}
	if gf.endpoint != "" {
		cfg.Endpoint = gf.endpoint
	}
	if gf.profile != "" {
		cfg.Profile = gf.profile
	}
	if gf.dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newS3Client builds the awsx.S3Client used by every subcommand, wired for
// region, credentials profile and an optional S3-compatible endpoint.
func newS3Client(ctx context.Context, cfg *config.Config) (*awsx.S3ClientImpl, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = awssdk.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	log.Debug().Str("region", cfg.Region).Str("endpoint", cfg.Endpoint).Msg("s3 client configured")
	return awsx.NewS3Client(client), nil
}
