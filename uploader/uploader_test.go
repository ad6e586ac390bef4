package uploader

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory stand-in for awsx.S3Client, collecting uploaded
// parts so tests can assert on the completed multipart upload without
// talking to a real bucket.
type fakeS3 struct {
	mu       sync.Mutex
	parts    map[int32][]byte
	aborted  bool
	failPart int32 // part number to fail with a permanent error, 0 disables
	flaky    map[int32]int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{parts: map[int32][]byte{}, flaky: map[int32]int{}}
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if f.failPart != 0 && aws.ToInt32(in.PartNumber) == f.failPart {
		return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	}
	f.mu.Lock()
	f.flaky[aws.ToInt32(in.PartNumber)]++
	attempt := f.flaky[aws.ToInt32(in.PartNumber)]
	f.mu.Unlock()
	if attempt == 1 && aws.ToInt32(in.PartNumber) == 2 {
		return nil, &smithy.GenericAPIError{Code: "InternalError", Message: "try again"}
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(data)

	f.mu.Lock()
	f.parts[aws.ToInt32(in.PartNumber)] = data
	f.mu.Unlock()

	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("%x", sum))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	var digests [][md5.Size]byte
	for i := 1; i <= len(in.MultipartUpload.Parts); i++ {
		digests = append(digests, md5.Sum(f.parts[int32(i)]))
	}
	etag := multipartETag(digests)
	return &s3.CompleteMultipartUploadOutput{ETag: aws.String(`"` + etag + `"`)}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	f.aborted = true
	f.mu.Unlock()
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return &s3.ListObjectsV2Output{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return nil, &smithy.GenericAPIError{Code: "NotFound"}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func TestUploadHappyPath(t *testing.T) {
	client := newFakeS3()
	coord := New(client, Config{
		Bucket:      "bucket",
		Key:         "key",
		Concurrency: 2,
		ChunkSize:   MinPartSize,
		MaxRetries:  3,
		StorageClass: types.StorageClassStandard,
	})

	data := bytes.Repeat([]byte("x"), MinPartSize*3)
	result, err := coord.Upload(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Parts)
	assert.Equal(t, int64(len(data)), result.Bytes)
	assert.NotEmpty(t, result.ETag)
	assert.False(t, client.aborted)
}

func TestUploadRetriesTransientError(t *testing.T) {
	client := newFakeS3()
	coord := New(client, Config{
		Bucket:      "bucket",
		Key:         "key",
		Concurrency: 1,
		ChunkSize:   MinPartSize,
		MaxRetries:  3,
	})

	data := bytes.Repeat([]byte("y"), MinPartSize*2)
	result, err := coord.Upload(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Parts)
}

func TestUploadAbortsOnPermanentError(t *testing.T) {
	client := newFakeS3()
	client.failPart = 2
	coord := New(client, Config{
		Bucket:      "bucket",
		Key:         "key",
		Concurrency: 2,
		ChunkSize:   MinPartSize,
		MaxRetries:  3,
	})

	data := bytes.Repeat([]byte("z"), MinPartSize*3)
	_, err := coord.Upload(context.Background(), bytes.NewReader(data))
	require.Error(t, err)
	assert.True(t, client.aborted)
}

func TestUploadEmptyInput(t *testing.T) {
	client := newFakeS3()
	coord := New(client, Config{Bucket: "bucket", Key: "key", ChunkSize: MinPartSize})

	_, err := coord.Upload(context.Background(), bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.True(t, client.aborted)
}
