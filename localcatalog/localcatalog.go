// Package localcatalog implements the local snapshot catalog: it shells out
// to the zfs(8) volume manager command to list existing snapshots and
// reconstruct each filesystem's parent chain. It is grounded on
// ZFSSnapshotManager from the original Python tool, translated from
// subprocess.check_output to os/exec.CommandContext.
package localcatalog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gurre/zfs3backup/snapshot"
)

// SoftError marks a condition the caller should report and continue past
// rather than treat as a hard failure, e.g. a filesystem with no snapshots
// yet to back up.
type SoftError struct{ Msg string }

func (e *SoftError) Error() string { return e.Msg }

// Catalog lists ZFS snapshots on the local volume manager.
type Catalog struct {
	// Runner executes "zfs" commands; overridden in tests.
	Runner func(ctx context.Context, args ...string) ([]byte, error)
}

// New constructs a Catalog that shells out to the real zfs binary.
func New() *Catalog {
	return &Catalog{Runner: runZFS}
}

func runZFS(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "zfs", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("zfs %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// List returns every snapshot known to the local volume manager for the
// given filesystem prefix (empty string lists all filesystems), grouped and
// linked into parent chains per filesystem. snapshotPrefix, if non-empty,
// filters out any snapshot whose label (the part after "@") does not start
// with it, mirroring ZFSSnapshotManager._build_snapshots: a filesystem with
// interleaved manually-taken snapshots never links or uploads them.
// If the zfs command cannot be started at all (not installed, or not
// executable), List returns an empty catalog instead of an error.
func (c *Catalog) List(ctx context.Context, filesystemPrefix, snapshotPrefix string) (map[string]*snapshot.Local, error) {
	args := []string{"list", "-Ht", "snap", "-o", "name,used,refer,mountpoint,written"}
	if filesystemPrefix != "" {
		args = append(args, "-r", filesystemPrefix)
	}
	raw, err := c.Runner(ctx, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, iofs.ErrPermission) {
			return map[string]*snapshot.Local{}, nil
		}
		return nil, fmt.Errorf("localcatalog: list: %w", err)
	}
	return buildChains(parseLines(raw), snapshotPrefix), nil
}

// Get resolves a single local snapshot by name, or (nil, nil) if absent.
func (c *Catalog) Get(ctx context.Context, name, snapshotPrefix string) (*snapshot.Local, error) {
	fs := name
	if at := strings.IndexByte(name, '@'); at >= 0 {
		fs = name[:at]
	}
	all, err := c.List(ctx, fs, snapshotPrefix)
	if err != nil {
		return nil, err
	}
	return all[name], nil
}

// Latest returns the most recently created snapshot for a filesystem: the
// tail of its parent chain, i.e. the one snapshot that is not itself
// another snapshot's parent. It returns a *SoftError if the filesystem has
// no snapshots at all, mirroring the original tool's "Nothing to backup"
// condition, which callers should report and skip rather than abort the
// whole run on.
func (c *Catalog) Latest(ctx context.Context, filesystem, snapshotPrefix string) (*snapshot.Local, error) {
	all, err := c.List(ctx, filesystem, snapshotPrefix)
	if err != nil {
		return nil, err
	}
	isParent := make(map[string]bool, len(all))
	for _, s := range all {
		if s.Parent != "" {
			isParent[s.Parent] = true
		}
	}
	var latest *snapshot.Local
	for name, s := range all {
		if s.Filesystem != filesystem || isParent[name] {
			continue
		}
		latest = s
	}
	if latest == nil {
		return nil, &SoftError{Msg: fmt.Sprintf("nothing to backup: %s has no snapshots", filesystem)}
	}
	return latest, nil
}

// Datasets lists every ZFS dataset (filesystem) name on the host.
// DatasetExists uses it to check whether a restore target already exists.
func (c *Catalog) Datasets(ctx context.Context) ([]string, error) {
	raw, err := c.Runner(ctx, "list", "-H", "-o", "name")
	if err != nil {
		return nil, fmt.Errorf("localcatalog: list datasets: %w", err)
	}
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// DatasetExists reports whether a named filesystem exists locally.
func (c *Catalog) DatasetExists(ctx context.Context, name string) (bool, error) {
	names, err := c.Datasets(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

type rawLine struct {
	name       string
	used       int64
	referenced int64
	mountpoint string
	written    int64
}

func parseLines(raw []byte) []rawLine {
	var lines []rawLine
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) != 5 {
			continue
		}
		lines = append(lines, rawLine{
			name:       fields[0],
			used:       parseZFSBytes(fields[1]),
			referenced: parseZFSBytes(fields[2]),
			mountpoint: fields[3],
			written:    parseZFSBytes(fields[4]),
		})
	}
	return lines
}

func parseZFSBytes(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// buildChains groups parsed snapshot lines by filesystem, in the order zfs
// list emits them (creation order), and links each to its predecessor as
// its Parent, mirroring ZFSSnapshotManager._build_snapshots. Lines whose
// snapshot label does not start with snapshotPrefix are skipped entirely,
// so they never end up in the chain and are never mistaken for a parent.
func buildChains(lines []rawLine, snapshotPrefix string) map[string]*snapshot.Local {
	out := make(map[string]*snapshot.Local, len(lines))
	prevByFS := make(map[string]string)

	for _, l := range lines {
		at := strings.IndexByte(l.name, '@')
		if at < 0 {
			continue
		}
		fs := l.name[:at]
		label := l.name[at+1:]
		if snapshotPrefix != "" && !strings.HasPrefix(label, snapshotPrefix) {
			continue
		}
		s := &snapshot.Local{
			Name:       l.name,
			Filesystem: fs,
			Used:       l.used,
			Referenced: l.referenced,
			Mountpoint: l.mountpoint,
			Written:    l.written,
			Parent:     prevByFS[fs],
		}
		out[l.name] = s
		prevByFS[fs] = l.name
	}
	return out
}
