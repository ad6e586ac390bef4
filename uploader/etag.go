package uploader

import (
	"crypto/md5"
	"fmt"
)

// multipartETag reproduces the ETag S3 computes for a completed multipart
// upload: the hex MD5 of the concatenation of each part's raw (binary, not
// hex-encoded) MD5 digest, suffixed with "-<part count>". S3 returns this
// same value in CompleteMultipartUploadOutput.ETag; callers use this to
// verify integrity independently of trusting the server response.
func multipartETag(partDigests [][md5.Size]byte) string {
	h := md5.New()
	for _, d := range partDigests {
		h.Write(d[:])
	}
	return fmt.Sprintf("%x-%d", h.Sum(nil), len(partDigests))
}
