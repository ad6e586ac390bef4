package pairmanager

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gurre/zfs3backup/localcatalog"
	"github.com/gurre/zfs3backup/remotecatalog"
	"github.com/gurre/zfs3backup/snapshot"
)

type fakeS3 struct {
	objects map[string]map[string]string
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, nil
}
func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, nil
}
func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, nil
}
func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, nil
}
func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var contents []types.Object
	for key := range f.objects {
		contents = append(contents, types.Object{Key: aws.String(key), Size: aws.Int64(0)})
	}
	return &s3.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(false)}, nil
}
func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(in.Key)
	meta, ok := f.objects[key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound"}
	}
	return &s3.HeadObjectOutput{Metadata: meta}, nil
}
func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("stream-bytes"))}, nil
}
func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return nil, nil
}

// fakeLocalRunner answers both "zfs list -Ht snap ..." (snapshot listing)
// and "zfs list -H -o name" (dataset listing) from fixed strings, so Restore
// tests can exercise the DatasetExists guard without a real zfs binary.
func fakeLocalRunner(snapshots, datasets string) func(ctx context.Context, args ...string) ([]byte, error) {
	return func(ctx context.Context, args ...string) ([]byte, error) {
		if len(args) > 1 && args[1] == "-Ht" {
			return []byte(snapshots), nil
		}
		return []byte(datasets), nil
	}
}

func TestParseEstimatedSize(t *testing.T) {
	out := []byte("full\ttank/data@1\t12345\nsize\t12345\n")
	n, err := parseEstimatedSize(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 12345 {
		t.Errorf("expected 12345, got %d", n)
	}
}

func TestParseEstimatedSizeEmpty(t *testing.T) {
	if _, err := parseEstimatedSize(nil); err == nil {
		t.Error("expected error for empty output")
	}
}

func TestBackupIncrementalWalksMissingAncestors(t *testing.T) {
	client := &fakeS3{objects: map[string]map[string]string{
		"backups/tank/data@1": {remotecatalog.MetaIsFull: "true"},
	}}
	mgr := New(client, localcatalog.New(), Options{Bucket: "bucket", Prefix: "backups/"})

	var uploaded []string
	mgr.backupFn = func(ctx context.Context, local *snapshot.Local, parent string) error {
		uploaded = append(uploaded, local.Name)
		return nil
	}

	locals := map[string]*snapshot.Local{
		"tank/data@1": {Name: "tank/data@1", Filesystem: "tank/data"},
		"tank/data@2": {Name: "tank/data@2", Filesystem: "tank/data", Parent: "tank/data@1"},
		"tank/data@3": {Name: "tank/data@3", Filesystem: "tank/data", Parent: "tank/data@2"},
	}

	err := mgr.BackupIncremental(context.Background(), locals["tank/data@3"], locals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(uploaded) != 2 || uploaded[0] != "tank/data@2" || uploaded[1] != "tank/data@3" {
		t.Errorf("expected [tank/data@2 tank/data@3] oldest first, got %v", uploaded)
	}
}

func TestBackupIncrementalIntegrityError(t *testing.T) {
	client := &fakeS3{objects: map[string]map[string]string{
		"backups/tank/data@1": {remotecatalog.MetaParent: "tank/data@0"},
	}}
	mgr := New(client, localcatalog.New(), Options{Bucket: "bucket", Prefix: "backups/"})
	mgr.backupFn = func(ctx context.Context, local *snapshot.Local, parent string) error {
		t.Fatal("backupFn should not be called when the chain is broken")
		return nil
	}

	locals := map[string]*snapshot.Local{
		"tank/data@1": {Name: "tank/data@1", Filesystem: "tank/data"},
		"tank/data@2": {Name: "tank/data@2", Filesystem: "tank/data", Parent: "tank/data@1"},
	}

	err := mgr.BackupIncremental(context.Background(), locals["tank/data@2"], locals)
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected *IntegrityError, got %T: %v", err, err)
	}
}

func TestRestoreRefusesExistingDatasetWithoutForce(t *testing.T) {
	client := &fakeS3{objects: map[string]map[string]string{
		"backups/tank/data@1": {remotecatalog.MetaIsFull: "true"},
	}}
	local := &localcatalog.Catalog{Runner: fakeLocalRunner("", "tank/data\n")}
	mgr := New(client, local, Options{Bucket: "bucket", Prefix: "backups/"})

	err := mgr.Restore(context.Background(), "tank/data@1", false)
	if err == nil {
		t.Fatal("expected error when dataset already exists locally without force")
	}
}

func TestRestoreAllowsExistingDatasetWithForce(t *testing.T) {
	client := &fakeS3{objects: map[string]map[string]string{
		"backups/tank/data@1": {remotecatalog.MetaIsFull: "true"},
	}}
	local := &localcatalog.Catalog{Runner: fakeLocalRunner("", "tank/data\n")}
	mgr := New(client, local, Options{Bucket: "bucket", Prefix: "backups/", DryRun: true})

	if err := mgr.Restore(context.Background(), "tank/data@1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRestoreIntegrityCheckIsUnconditional(t *testing.T) {
	client := &fakeS3{objects: map[string]map[string]string{
		"backups/tank/data@1": {remotecatalog.MetaParent: "tank/data@0"},
	}}
	local := &localcatalog.Catalog{Runner: fakeLocalRunner("", "")}
	mgr := New(client, local, Options{Bucket: "bucket", Prefix: "backups/", DryRun: true})

	err := mgr.Restore(context.Background(), "tank/data@1", true)
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected *IntegrityError even with force=true, got %T: %v", err, err)
	}
}
