package uploader

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/aws/smithy-go"
)

// ErrEmptyInput is returned when a source stream produced zero bytes; the
// in-progress multipart upload is aborted rather than completed with no
// parts, since S3 rejects a CompleteMultipartUpload with an empty part list.
var ErrEmptyInput = errors.New("uploader: empty input, nothing to upload")

// ErrIntegrity is returned when the ETag computed locally from per-part MD5
// digests does not match the ETag S3 returns for the completed object.
var ErrIntegrity = errors.New("uploader: integrity check failed")

// permanentCodes are S3/STS API error codes that retrying cannot fix:
// the request itself is wrong, or the caller lacks permission.
var permanentCodes = map[string]bool{
	"AccessDenied":              true,
	"InvalidAccessKeyId":        true,
	"SignatureDoesNotMatch":     true,
	"NoSuchBucket":              true,
	"NoSuchUpload":              true,
	"InvalidArgument":           true,
	"EntityTooLarge":            true,
	"EntityTooSmall":            true,
	"InvalidPart":               true,
	"InvalidPartOrder":          true,
	"MalformedPolicy":           true,
}

// isPermanent classifies an S3 error as non-retryable. Throttling, internal
// errors and network-level failures fall through as transient and are left
// to the exponential backoff policy.
func isPermanent(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return permanentCodes[apiErr.ErrorCode()]
	}
	return false
}

func newBytesReader(b []byte) io.ReadSeeker {
	return bytes.NewReader(b)
}

func md5Base64(sum [md5.Size]byte) string {
	return base64.StdEncoding.EncodeToString(sum[:])
}

// trimETag strips the surrounding quotes S3 puts around ETag values.
func trimETag(s string) string {
	return strings.Trim(s, `"`)
}
