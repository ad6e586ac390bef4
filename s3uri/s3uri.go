// Package s3uri parses the "s3://bucket/key" URIs accepted on the command
// line by the pput and zfs3get tools. The compiled
// pattern and bucket/key split are adapted from this module's original S3
// manifest-location parsing.
package s3uri

import (
	"fmt"
	"regexp"
)

// pattern is compiled once at package level to avoid recompilation per call.
var pattern = regexp.MustCompile(`^s3://([^/]+)/?(.*)$`)

// Parse splits an "s3://bucket/key" URI into its bucket and key components.
// The key may be empty, e.g. for "s3://bucket".
func Parse(uri string) (bucket, key string, err error) {
	matches := pattern.FindStringSubmatch(uri)
	if matches == nil {
		return "", "", fmt.Errorf("s3uri: invalid S3 URI %q, expected s3://bucket/key", uri)
	}
	return matches[1], matches[2], nil
}

// Bucket extracts just the bucket name from an S3 URI.
func Bucket(uri string) (string, error) {
	bucket, _, err := Parse(uri)
	return bucket, err
}

// Key extracts just the key from an S3 URI.
func Key(uri string) (string, error) {
	_, key, err := Parse(uri)
	return key, err
}
