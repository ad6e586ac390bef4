// Package remotecatalog implements the object catalog: it lists snapshot
// objects under an S3 prefix and reconstructs the Remote snapshot records
// (including parent linkage) from their key layout and user metadata. It is
// grounded on S3SnapshotManager from the original Python tool, reshaped
// around the aws-sdk-go-v2 paginator the teacher project already used for
// listing.
package remotecatalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gurre/zfs3backup/awsx"
	"github.com/gurre/zfs3backup/snapshot"
)

// Metadata keys stored on each uploaded snapshot object, read back via
// HeadObject to reconstruct lineage without needing
// a separate index object. These are bit-exact with the original tool's
// object metadata so objects round-trip between implementations.
// MetaIsFullLegacy is accepted on read for objects written by the original
// tool; new uploads always write MetaIsFull.
const (
	MetaParent       = "parent"
	MetaIsFull       = "isfull"
	MetaIsFullLegacy = "is_full"
	MetaSize         = "size"
	MetaCompressor   = "compressor"
)

// Catalog lists and resolves snapshot objects under one S3 prefix.
type Catalog struct {
	client awsx.S3Client
	bucket string
	prefix string
}

// New constructs a Catalog rooted at bucket/prefix. prefix should end in
// "/" if non-empty.
func New(client awsx.S3Client, bucket, prefix string) *Catalog {
	return &Catalog{client: client, bucket: bucket, prefix: prefix}
}

// keyFor returns the object key for a snapshot name under this catalog's
// prefix, e.g. prefix "backups/" + name "tank/data@2026-07-01" ->
// "backups/tank/data@2026-07-01".
func (c *Catalog) keyFor(name string) string {
	return c.prefix + name
}

// List returns every snapshot recorded under the catalog's prefix, indexed
// by snapshot name. Each object's metadata is read with HeadObject since
// ListObjectsV2 does not return user metadata.
func (c *Catalog) List(ctx context.Context) (map[string]*snapshot.Remote, error) {
	out := make(map[string]*snapshot.Remote)

	var token *string
	for {
		resp, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(c.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("remotecatalog: list objects: %w", err)
		}
		for _, obj := range resp.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, c.prefix)
			if name == "" {
				continue
			}
			rs, err := c.describe(ctx, key, name)
			if err != nil {
				return nil, err
			}
			rs.CompressedSize = aws.ToInt64(obj.Size)
			out[name] = rs
		}
		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		token = resp.NextContinuationToken
	}
	return out, nil
}

// Get resolves a single snapshot by name, or returns (nil, nil) if it does
// not exist in the catalog.
func (c *Catalog) Get(ctx context.Context, name string) (*snapshot.Remote, error) {
	key := c.keyFor(name)
	rs, err := c.describe(ctx, key, name)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return rs, nil
}

func (c *Catalog) describe(ctx context.Context, key, name string) (*snapshot.Remote, error) {
	head, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("remotecatalog: head object %s: %w", key, err)
	}

	rs := &snapshot.Remote{
		Name:           name,
		Key:            key,
		CompressedSize: aws.ToInt64(head.ContentLength),
	}
	if at := strings.IndexByte(name, '@'); at >= 0 {
		rs.Filesystem = name[:at]
	}
	if p, ok := head.Metadata[MetaParent]; ok {
		rs.Parent = p
	}
	rs.Full = isFullValue(head.Metadata)
	if comp, ok := head.Metadata[MetaCompressor]; ok {
		rs.Compressor = comp
	}
	if sz, ok := head.Metadata[MetaSize]; ok {
		if n, err := strconv.ParseInt(sz, 10, 64); err == nil {
			rs.UncompressedSize = n
		}
	}
	return rs, nil
}

// isFullValue reads the isfull flag from object metadata, falling back to
// the original tool's is_full key. Any value other than exactly "true",
// including an absent key, means non-full.
func isFullValue(meta map[string]string) bool {
	if v, ok := meta[MetaIsFull]; ok {
		return v == "true"
	}
	if v, ok := meta[MetaIsFullLegacy]; ok {
		return v == "true"
	}
	return false
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "404") || strings.Contains(msg, "NoSuchKey")
}
