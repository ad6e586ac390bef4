// Package pipeline executes the shell pipelines that move snapshot streams
// between zfs send/recv and the uploader/downloader: an optional compressor
// stage wired between a producer and a consumer command, with an optional
// throughput meter. It is grounded on CommandExecutor from the original
// Python tool, which shelled out to pv for the same purpose; this port uses
// schollz/progressbar in-process instead of spawning an external pv.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/schollz/progressbar/v3"
)

// Compressor names a compression scheme and the external commands used to
// apply and reverse it. An empty Name (or "none") means the stream passes
// through unmodified.
type Compressor struct {
	Name       string
	CompressCmd   []string
	DecompressCmd []string
}

// Compressors is the table of supported compression schemes, grounded on
// the COMPRESSORS dict in the original tool.
var Compressors = map[string]Compressor{
	"none": {Name: "none"},
	"pigz1": {
		Name:          "pigz1",
		CompressCmd:   []string{"pigz", "-1", "--blocksize", "4096", "-c"},
		DecompressCmd: []string{"pigz", "-d", "-c"},
	},
	"pigz4": {
		Name:          "pigz4",
		CompressCmd:   []string{"pigz", "-4", "--blocksize", "4096", "-c"},
		DecompressCmd: []string{"pigz", "-d", "-c"},
	},
}

// Lookup returns the named compressor, defaulting to "none" for an empty
// name, and an error for an unrecognized one.
func Lookup(name string) (Compressor, error) {
	if name == "" {
		name = "none"
	}
	c, ok := Compressors[name]
	if !ok {
		return Compressor{}, fmt.Errorf("pipeline: unknown compressor %q", name)
	}
	return c, nil
}

// Meter returns a progress bar, drawn to w, that Send and Recv feed with
// the bytes they move, driven by an estimated total size, mirroring the original tool's use of pv -s
// <estimated size>. estimatedBytes of 0 disables the size estimate but
// still reports a byte count.
func Meter(label string, estimatedBytes int64, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions64(estimatedBytes,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// Send runs a producer command (typically "zfs send ...") and streams its
// stdout through an optional compressor into the supplied sink, reporting
// bytes written to meter if non-nil. The producer's stderr is forwarded to
// the caller via errOut for diagnostics (zfs send prints progress to
// stderr when invoked with -v).
func Send(ctx context.Context, producer []string, compressor Compressor, sink io.Writer, meter *progressbar.ProgressBar, errOut io.Writer) error {
	var dest io.Writer = sink
	if meter != nil {
		dest = io.MultiWriter(sink, meter)
	}

	producerCmd := exec.CommandContext(ctx, producer[0], producer[1:]...)
	producerCmd.Stderr = errOut

	if len(compressor.CompressCmd) == 0 {
		producerCmd.Stdout = dest
		if err := producerCmd.Run(); err != nil {
			return fmt.Errorf("pipeline: send: %w", err)
		}
		return nil
	}

	producerOut, err := producerCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("pipeline: send: stdout pipe: %w", err)
	}
	compCmd := exec.CommandContext(ctx, compressor.CompressCmd[0], compressor.CompressCmd[1:]...)
	compCmd.Stdin = producerOut
	compCmd.Stdout = dest
	compCmd.Stderr = errOut

	if err := producerCmd.Start(); err != nil {
		return fmt.Errorf("pipeline: send: start producer: %w", err)
	}
	if err := compCmd.Run(); err != nil {
		return fmt.Errorf("pipeline: send: compressor: %w", err)
	}
	if err := producerCmd.Wait(); err != nil {
		return fmt.Errorf("pipeline: send: %w", err)
	}
	return nil
}

// Recv streams src (typically the body of an S3 GetObject) through an
// optional decompressor into a consumer command (typically "zfs recv ..."),
// reporting bytes read to meter if non-nil.
func Recv(ctx context.Context, src io.Reader, decompressor Compressor, consumer []string, meter *progressbar.ProgressBar, errOut io.Writer) error {
	var source io.Reader = src
	if meter != nil {
		source = io.TeeReader(src, meter)
	}

	consumerCmd := exec.CommandContext(ctx, consumer[0], consumer[1:]...)
	consumerCmd.Stderr = errOut

	if len(decompressor.DecompressCmd) == 0 {
		consumerCmd.Stdin = source
		if err := consumerCmd.Run(); err != nil {
			return fmt.Errorf("pipeline: recv: %w", err)
		}
		return nil
	}

	decompCmd := exec.CommandContext(ctx, decompressor.DecompressCmd[0], decompressor.DecompressCmd[1:]...)
	decompCmd.Stdin = source
	decompCmd.Stderr = errOut
	decompOut, err := decompCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("pipeline: recv: stdout pipe: %w", err)
	}
	consumerCmd.Stdin = decompOut

	if err := decompCmd.Start(); err != nil {
		return fmt.Errorf("pipeline: recv: start decompressor: %w", err)
	}
	if err := consumerCmd.Run(); err != nil {
		return fmt.Errorf("pipeline: recv: %w", err)
	}
	if err := decompCmd.Wait(); err != nil {
		return fmt.Errorf("pipeline: recv: %w", err)
	}
	return nil
}
