// Package chunkreader splits a single input stream into fixed-size,
// sequentially numbered chunks for parallel multipart upload. It is the Go
// equivalent of the StreamHandler in the original Python uploader: a single
// reader goroutine owns the source io.Reader, since reading from stdin (or
// any pipe) from multiple goroutines at once is undefined.
package chunkreader

import (
	"context"
	"fmt"
	"io"
)

// Chunk is one numbered slice of the input stream. Part numbers start at 1,
// matching the S3 multipart upload part-number convention.
type Chunk struct {
	PartNumber int32
	Data       []byte
}

// Reader reads fixed-size chunks from a source stream until EOF.
type Reader struct {
	src       io.Reader
	chunkSize int
	next      int32
}

// New constructs a Reader. chunkSize must be at least 5 MiB for any part
// but the last, per the S3 multipart upload contract; callers choose the
// size via config or OptimizeChunkSize and are responsible for that bound.
func New(src io.Reader, chunkSize int) *Reader {
	return &Reader{src: src, chunkSize: chunkSize, next: 1}
}

// Next reads the next chunk from the stream. It returns io.EOF once the
// stream is exhausted, matching the StreamHandler.finished contract: a
// chunk of length zero is never emitted as a distinct part.
func (r *Reader) Next() (Chunk, error) {
	buf := make([]byte, r.chunkSize)
	n, err := io.ReadFull(r.src, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Chunk{}, fmt.Errorf("chunkreader: read: %w", err)
	}
	if n == 0 {
		return Chunk{}, io.EOF
	}
	c := Chunk{PartNumber: r.next, Data: buf[:n]}
	r.next++
	return c, nil
}

// Feed reads chunks from the stream and sends them on out until EOF or ctx
// is cancelled, then closes out. It is run in its own goroutine by the
// upload coordinator, which is the only concurrent reader of src.
func (r *Reader) Feed(ctx context.Context, out chan<- Chunk) error {
	defer close(out)
	for {
		chunk, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
