// Command genstream writes a deterministic synthetic byte stream to stdout,
// sized and seeded by flags. It exists to exercise the multipart uploader
// and the backup pipeline end to end without a real ZFS volume manager
// available, the same role this module's original random DynamoDB item
// generator played for the DynamoDB restore path: a seeded generator behind
// a flag-based CLI, printing progress to stderr as it runs.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/gurre/zfs3backup/uploader"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "genstream: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		sizeStr    = flag.String("size", "100M", "total bytes to generate, e.g. 100M, 2G")
		seed       = flag.Int64("seed", 1, "PRNG seed, for reproducible streams")
		bufferSize = flag.Int("buffer", 1<<20, "write buffer size in bytes")
		progress   = flag.Bool("progress", false, "print progress to stderr")
	)
	flag.Parse()

	total, err := uploader.ParseSize(*sizeStr)
	if err != nil {
		return fmt.Errorf("invalid --size: %w", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	w := bufio.NewWriterSize(os.Stdout, *bufferSize)

	buf := make([]byte, *bufferSize)
	var written int64
	reportEvery := total / 20
	if reportEvery == 0 {
		reportEvery = total
	}
	var nextReport int64

	for written < total {
		n := len(buf)
		if remaining := total - written; remaining < int64(n) {
			n = int(remaining)
		}
		if _, err := rng.Read(buf[:n]); err != nil {
			return fmt.Errorf("fill buffer: %w", err)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
		written += int64(n)

		if *progress && written >= nextReport {
			fmt.Fprintf(os.Stderr, "genstream: %d/%d bytes\n", written, total)
			nextReport += reportEvery
		}
	}

	return w.Flush()
}
