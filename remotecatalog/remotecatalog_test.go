package remotecatalog

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeS3 struct {
	objects map[string]map[string]string // key -> metadata
	sizes   map[string]int64
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
		contents = append(contents, types.Object{Key: aws.String(key), Size: aws.Int64(f.sizes[key])})
	}
	return &s3.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(false)}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(in.Key)
	meta, ok := f.objects[key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "not found"}
	}
	return &s3.HeadObjectOutput{Metadata: meta, ContentLength: aws.Int64(f.sizes[key])}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, nil
}
func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return nil, nil
}

func TestCatalogList(t *testing.T) {
	client := &fakeS3{
		objects: map[string]map[string]string{
			"backups/tank/data@1": {MetaIsFull: "true", MetaCompressor: "pigz4", MetaSize: "1048576"},
			"backups/tank/data@2": {MetaParent: "tank/data@1", MetaCompressor: "pigz4"},
		},
		sizes: map[string]int64{"backups/tank/data@1": 500000, "backups/tank/data@2": 600000},
	}
	cat := New(client, "bucket", "backups/")

	snaps, err := cat.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	first := snaps["tank/data@1"]
	if first == nil || !first.IsFull() {
		t.Fatalf("expected tank/data@1 to be full, got %+v", first)
	}
	if first.UncompressedSize != 1048576 {
		t.Errorf("expected uncompressed size 1048576, got %d", first.UncompressedSize)
	}
	second := snaps["tank/data@2"]
	if second == nil || second.Parent != "tank/data@1" {
		t.Fatalf("expected tank/data@2 parent tank/data@1, got %+v", second)
	}
}

func TestCatalogDescribeAcceptsLegacyIsFullKey(t *testing.T) {
	client := &fakeS3{
		objects: map[string]map[string]string{
			"backups/tank/data@1": {"is_full": "true"},
		},
		sizes: map[string]int64{"backups/tank/data@1": 500000},
	}
	cat := New(client, "bucket", "backups/")

	rs, err := cat.Get(context.Background(), "tank/data@1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs == nil || !rs.IsFull() {
		t.Fatalf("expected legacy is_full=true to mark snapshot full, got %+v", rs)
	}
}

func TestCatalogDescribeAbsentIsFullMeansNonFull(t *testing.T) {
	client := &fakeS3{
		objects: map[string]map[string]string{
			"backups/tank/data@1": {},
		},
		sizes: map[string]int64{"backups/tank/data@1": 500000},
	}
	cat := New(client, "bucket", "backups/")

	rs, err := cat.Get(context.Background(), "tank/data@1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs == nil || rs.IsFull() {
		t.Fatalf("expected absent isfull metadata to mean non-full, got %+v", rs)
	}
}

func TestCatalogGetMissing(t *testing.T) {
	client := &fakeS3{objects: map[string]map[string]string{}, sizes: map[string]int64{}}
	cat := New(client, "bucket", "backups/")

	rs, err := cat.Get(context.Background(), "tank/data@missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs != nil {
		t.Fatalf("expected nil for missing snapshot, got %+v", rs)
	}
}
