// Package lineage resolves the health of every snapshot in an object
// catalog by walking each one's parent chain. It is a direct translation of
// S3Snapshot._is_healthy from the original Python tool: a recursive DFS
// with a visited set to detect cycles, memoized onto each snapshot so a
// chain is never walked twice.
package lineage

import "github.com/gurre/zfs3backup/snapshot"

// Resolve classifies every snapshot in catalog, calling SetHealth on each
// one. Safe to call repeatedly if the catalog is reloaded; classification
// is idempotent.
func Resolve(catalog map[string]*snapshot.Remote) {
	for name := range catalog {
		resolve(catalog, name, make(map[string]bool))
	}
}

// resolve returns the health of the named snapshot, computing and caching
// it if not already classified. visited tracks the names seen on the
// current walk so a chain that loops back on itself is reported as a
// cycle instead of recursing forever.
func resolve(catalog map[string]*snapshot.Remote, name string, visited map[string]bool) snapshot.Health {
	rs, ok := catalog[name]
	if !ok {
		return snapshot.HealthMissingParent
	}
	if rs.Health() != snapshot.HealthUnknown {
		return rs.Health()
	}
	if visited[name] {
		rs.SetHealth(snapshot.HealthCycle, "snapshot chain loops back on "+name)
		return snapshot.HealthCycle
	}
	visited[name] = true

	if rs.IsFull() {
		rs.SetHealth(snapshot.HealthHealthy, "")
		return snapshot.HealthHealthy
	}

	if _, ok := catalog[rs.Parent]; !ok {
		rs.SetHealth(snapshot.HealthMissingParent, "parent "+rs.Parent+" not found in catalog")
		return snapshot.HealthMissingParent
	}

	ph := resolve(catalog, rs.Parent, visited)
	switch ph {
	case snapshot.HealthHealthy:
		rs.SetHealth(snapshot.HealthHealthy, "")
	case snapshot.HealthCycle:
		rs.SetHealth(snapshot.HealthCycle, "parent chain loops through "+rs.Parent)
	default:
		rs.SetHealth(snapshot.HealthParentBroken, "parent "+rs.Parent+" is "+ph.String())
	}
	return rs.Health()
}
