// Command pput uploads stdin to S3 as a single object via a parallel
// multipart upload, printing a JSON status line on completion. It is the
// standalone upload tool the original Python project shipped alongside the
// snapshot manager, wired here directly against the uploader package
// instead of shelling out to AWS CLI or boto3.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"

	"github.com/gurre/zfs3backup/awsx"
	"github.com/gurre/zfs3backup/s3uri"
	"github.com/gurre/zfs3backup/uploader"
)

type metaFlags map[string]string

func (m metaFlags) String() string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (m metaFlags) Set(value string) error {
	kv := strings.SplitN(value, "=", 2)
	if len(kv) != 2 {
		return fmt.Errorf("--meta must be key=value, got %q", value)
	}
	m[kv[0]] = kv[1]
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pput: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		s3path       = flag.String("s3path", "", "destination s3://bucket/key")
		concurrency  = flag.Int("concurrency", 4, "number of concurrent upload workers")
		chunkSizeStr = flag.String("chunk-size", "10M", "part size, e.g. 10M, 64M")
		profile      = flag.String("profile", "", "AWS credentials profile")
		endpoint     = flag.String("endpoint", "", "S3-compatible endpoint override")
		region       = flag.String("region", "us-east-1", "AWS region")
		storageClass = flag.String("storage-class", "STANDARD", "S3 storage class")
	)
	meta := make(metaFlags)
	flag.Var(meta, "meta", "object metadata key=value, repeatable")
	flag.Parse()

	if *s3path == "" {
		return fmt.Errorf("--s3path is required")
	}
	bucket, key, err := s3uri.Parse(*s3path)
	if err != nil {
		return err
	}
	chunkSize, err := uploader.ParseSize(*chunkSizeStr)
	if err != nil {
		return fmt.Errorf("invalid --chunk-size: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newS3Client(ctx, *profile, *region, *endpoint)
	if err != nil {
		return err
	}

	coord := uploader.New(client, uploader.Config{
		Bucket:       bucket,
		Key:          key,
		Concurrency:  *concurrency,
		ChunkSize:    int(chunkSize),
		ContentType:  "application/octet-stream",
		StorageClass: types.StorageClass(*storageClass),
		ACL:          types.ObjectCannedACLBucketOwnerFullControl,
		Metadata:     meta,
		MaxRetries:   5,
	})

	result, err := coord.Upload(ctx, os.Stdin)
	if err != nil {
		printStatus("error", "", err)
		return err
	}
	printStatus("success", result.ETag, nil)
	return nil
}

func printStatus(status, etag string, uploadErr error) {
	out := map[string]interface{}{"status": status}
	if etag != "" {
		out["etag"] = etag
	}
	if uploadErr != nil {
		out["error"] = uploadErr.Error()
	}
	data, _ := json.Marshal(out)
	fmt.Println(string(data))
}

func newS3Client(ctx context.Context, profile, region, endpoint string) (*awsx.S3ClientImpl, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		}
	})
	return awsx.NewS3Client(client), nil
}
