// Command zfs3get streams an object from S3 to stdout. It is the Go
// equivalent of the original tool's get.py: a minimal downloader meant to
// be the read half of a `zfs3get ... | zfs recv` pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gurre/zfs3backup/s3uri"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "zfs3get: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		profile  = flag.String("profile", "", "AWS credentials profile")
		endpoint = flag.String("endpoint", "", "S3-compatible endpoint override")
		region   = flag.String("region", "us-east-1", "AWS region")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		return fmt.Errorf("usage: zfs3get [flags] s3://bucket/key")
	}
	bucket, key, err := s3uri.Parse(flag.Arg(0))
	if err != nil {
		return err
	}

	ctx := context.Background()

	opts := []func(*config.LoadOptions) error{config.WithRegion(*region)}
	if *profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(*profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if *endpoint != "" {
			o.BaseEndpoint = endpoint
			o.UsePathStyle = true
		}
	})

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(os.Stdout, out.Body); err != nil {
		return fmt.Errorf("write stdout: %w", err)
	}
	return nil
}
