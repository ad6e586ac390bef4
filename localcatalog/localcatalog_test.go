package localcatalog

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func fakeCatalog(output string) *Catalog {
	return &Catalog{
		Runner: func(ctx context.Context, args ...string) ([]byte, error) {
			return []byte(output), nil
		},
	}
}

const sampleOutput = "tank/data@1\t1000\t2000\t/tank/data\t1000\n" +
	"tank/data@2\t1500\t2500\t/tank/data\t500\n" +
	"tank/data@3\t1800\t2800\t/tank/data\t300\n"

func TestListBuildsChain(t *testing.T) {
	c := fakeCatalog(sampleOutput)
	snaps, err := c.List(context.Background(), "tank/data", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	if snaps["tank/data@1"].Parent != "" {
		t.Errorf("expected @1 to have no parent, got %q", snaps["tank/data@1"].Parent)
	}
	if snaps["tank/data@2"].Parent != "tank/data@1" {
		t.Errorf("expected @2 parent tank/data@1, got %q", snaps["tank/data@2"].Parent)
	}
	if snaps["tank/data@3"].Parent != "tank/data@2" {
		t.Errorf("expected @3 parent tank/data@2, got %q", snaps["tank/data@3"].Parent)
	}
}

func TestLatest(t *testing.T) {
	c := fakeCatalog(sampleOutput)
	latest, err := c.Latest(context.Background(), "tank/data", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.Name != "tank/data@3" {
		t.Errorf("expected tank/data@3, got %s", latest.Name)
	}
}

func TestLatestNoSnapshots(t *testing.T) {
	c := fakeCatalog("")
	_, err := c.Latest(context.Background(), "tank/empty", "")
	var soft *SoftError
	if !errors.As(err, &soft) {
		t.Fatalf("expected SoftError, got %v", err)
	}
	if !strings.Contains(soft.Error(), "nothing to backup") {
		t.Errorf("unexpected message: %s", soft.Error())
	}
}

func TestListFiltersBySnapshotPrefix(t *testing.T) {
	output := "tank/data@auto-1\t1000\t2000\t/tank/data\t1000\n" +
		"tank/data@manual\t1200\t2200\t/tank/data\t200\n" +
		"tank/data@auto-2\t1500\t2500\t/tank/data\t500\n"
	c := fakeCatalog(output)

	snaps, err := c.List(context.Background(), "tank/data", "auto-")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots after filtering, got %d", len(snaps))
	}
	if _, ok := snaps["tank/data@manual"]; ok {
		t.Error("expected manual snapshot to be filtered out")
	}
	if snaps["tank/data@auto-2"].Parent != "tank/data@auto-1" {
		t.Errorf("expected auto-2 to chain off auto-1 skipping the interleaved manual snapshot, got parent %q", snaps["tank/data@auto-2"].Parent)
	}
}

func TestGet(t *testing.T) {
	c := fakeCatalog(sampleOutput)
	s, err := c.Get(context.Background(), "tank/data@2", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil || s.Name != "tank/data@2" {
		t.Fatalf("expected tank/data@2, got %+v", s)
	}
}
