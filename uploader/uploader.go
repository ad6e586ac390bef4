// Package uploader implements the parallel multipart uploader: a pool of
// upload workers pulling chunks off a single shared reader and a
// coordinator that drives the S3 multipart upload lifecycle end to end.
// The design mirrors the supervisor/worker split of the original Python
// uploader (UploadSupervisor/UploadWorker in pput.py), reshaped around Go
// channels instead of threads and a bounded work queue.
package uploader

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/gurre/zfs3backup/awsx"
	"github.com/gurre/zfs3backup/chunkreader"
)

// Config controls one multipart upload.
type Config struct {
	Bucket       string
	Key          string
	Concurrency  int
	ChunkSize    int
	ContentType  string
	StorageClass types.StorageClass
	ACL          types.ObjectCannedACL
	Metadata     map[string]string
	MaxRetries   uint64 // per-part retry attempts before the part is fatal
}

// Result summarizes a completed upload.
type Result struct {
	ETag  string
	Bytes int64
	Parts int
}

// partResult is what a worker reports back for one chunk. Fatal is set
// when the error survived retry classification and should abort the whole
// upload, distinguishing it from a part that simply hasn't been attempted
// yet, which closes the race the original design left open between a crashed
// worker and one still retrying.
type partResult struct {
	partNumber int32
	etag       string
	digest     [md5.Size]byte
	size       int64
	err        error
	fatal      bool
}

// Coordinator drives an upload: it owns the worker pool, the chunk feeder,
// and the multipart lifecycle calls (create/complete/abort).
type Coordinator struct {
	client awsx.S3Client
	cfg    Config

	statusMu sync.RWMutex
	partsOK  int
	bytesOK  int64
}

// New constructs a Coordinator bound to one S3 client and configuration.
func New(client awsx.S3Client, cfg Config) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	return &Coordinator{client: client, cfg: cfg}
}

// Progress reports parts and bytes uploaded so far. Safe to call
// concurrently with Upload from a reporting goroutine.
func (c *Coordinator) Progress() (parts int, bytesDone int64) {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.partsOK, c.bytesOK
}

func (c *Coordinator) recordProgress(size int64) {
	c.statusMu.Lock()
	c.partsOK++
	c.bytesOK += size
	c.statusMu.Unlock()
}

// Upload reads src to completion, uploading it as a multipart object. If no
// chunk at all is read (a zero-byte input), the in-progress multipart
// upload is aborted and ErrEmptyInput is returned, matching the original
// tool's refusal to create empty objects via the multipart API.
func (c *Coordinator) Upload(ctx context.Context, src io.Reader) (Result, error) {
	create, err := c.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:       aws.String(c.cfg.Bucket),
		Key:          aws.String(c.cfg.Key),
		ContentType:  aws.String(c.cfg.ContentType),
		StorageClass: c.cfg.StorageClass,
		ACL:          c.cfg.ACL,
		Metadata:     c.cfg.Metadata,
	})
	if err != nil {
		return Result{}, fmt.Errorf("uploader: create multipart upload: %w", err)
	}
	uploadID := aws.ToString(create.UploadId)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan chunkreader.Chunk, c.cfg.Concurrency)
	results := make(chan partResult, c.cfg.Concurrency)

	reader := chunkreader.New(src, c.cfg.ChunkSize)
	go func() {
		if err := reader.Feed(ctx, jobs); err != nil && err != context.Canceled {
			log.Debug().Err(err).Str("key", c.cfg.Key).Msg("chunk feed stopped")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(c.cfg.Concurrency)
	for i := 0; i < c.cfg.Concurrency; i++ {
		go func(id int) {
			defer wg.Done()
			c.worker(ctx, id, uploadID, jobs, results)
		}(i)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var done []partResult
	var total int64
	var fatalErr error

	for r := range results {
		if r.err != nil {
			if r.fatal && fatalErr == nil {
				fatalErr = r.err
				cancel()
			}
			continue
		}
		done = append(done, r)
		total += r.size
		c.recordProgress(r.size)
	}

	if fatalErr != nil {
		c.abort(context.WithoutCancel(ctx), uploadID)
		return Result{}, fmt.Errorf("uploader: part upload failed: %w", fatalErr)
	}
	if len(done) == 0 {
		c.abort(context.WithoutCancel(ctx), uploadID)
		return Result{}, ErrEmptyInput
	}

	sort.Slice(done, func(i, j int) bool { return done[i].partNumber < done[j].partNumber })

	parts := make([]types.CompletedPart, len(done))
	digests := make([][md5.Size]byte, len(done))
	for i, r := range done {
		parts[i] = types.CompletedPart{ETag: aws.String(r.etag), PartNumber: aws.Int32(r.partNumber)}
		digests[i] = r.digest
	}

	complete, err := c.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.cfg.Bucket),
		Key:      aws.String(c.cfg.Key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		c.abort(context.WithoutCancel(ctx), uploadID)
		return Result{}, fmt.Errorf("uploader: complete multipart upload: %w", err)
	}

	want := multipartETag(digests)
	got := trimETag(aws.ToString(complete.ETag))
	if got != "" && got != want {
		return Result{}, fmt.Errorf("%w: computed %s, server returned %s", ErrIntegrity, want, got)
	}

	return Result{ETag: want, Bytes: total, Parts: len(parts)}, nil
}

func (c *Coordinator) abort(ctx context.Context, uploadID string) {
	_, err := c.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.cfg.Bucket),
		Key:      aws.String(c.cfg.Key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		log.Warn().Err(err).Str("key", c.cfg.Key).Msg("abort multipart upload failed")
	}
}

// worker uploads chunks off jobs until it is closed, applying exponential
// backoff per part and classifying each failure as transient (retry) or
// permanent (fatal) via isPermanent.
func (c *Coordinator) worker(ctx context.Context, id int, uploadID string, jobs <-chan chunkreader.Chunk, results chan<- partResult) {
	for chunk := range jobs {
		sum := md5.Sum(chunk.Data)

		bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)
		var etag string
		op := func() error {
			out, err := c.client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:     aws.String(c.cfg.Bucket),
				Key:        aws.String(c.cfg.Key),
				UploadId:   aws.String(uploadID),
				PartNumber: aws.Int32(chunk.PartNumber),
				Body:       newBytesReader(chunk.Data),
				ContentMD5: aws.String(md5Base64(sum)),
			})
			if err != nil {
				if isPermanent(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			etag = aws.ToString(out.ETag)
			return nil
		}

		err := backoff.Retry(op, bo)
		if err != nil {
			results <- partResult{
				partNumber: chunk.PartNumber,
				err:        fmt.Errorf("worker %d part %d: %w", id, chunk.PartNumber, err),
				fatal:      true,
			}
			continue
		}

		results <- partResult{
			partNumber: chunk.PartNumber,
			etag:       etag,
			digest:     sum,
			size:       int64(len(chunk.Data)),
		}
	}
}

