package uploader

import (
	"fmt"
	"strconv"
	"strings"
)

// MinPartSize is the smallest part size OptimizeChunkSize returns. It sits
// above S3's own 5 MiB minimum for any part but the last.
const MinPartSize = 10 << 20 // 10 MiB

// maxParts is the largest part count S3 allows in one multipart upload.
const maxParts = 9999

// OptimizeChunkSize picks a part size that keeps a stream of the given
// estimated size under the S3 part-count ceiling, padding the estimate by
// 5% for safety margin against `zfs send -nvP` underestimating the actual
// stream size. Never returns less than MinPartSize.
func OptimizeChunkSize(estimatedBytes int64) int {
	padded := float64(estimatedBytes) * 1.05
	size := int64(padded / maxParts)
	if size < MinPartSize {
		return MinPartSize
	}
	return int(size)
}

// ParseSize parses a human size string with an optional K/M/G/T suffix
// (base 1024) into a byte count, e.g. "10M" -> 10485760. A bare number is
// interpreted as bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("uploader: empty size")
	}
	mult := int64(1)
	suffix := s[len(s)-1]
	switch suffix {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	case 't', 'T':
		mult = 1 << 40
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("uploader: invalid size %q: %w", s, err)
	}
	return int64(n * float64(mult)), nil
}
