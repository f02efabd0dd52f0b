/*
Package collab implements the real-time collaboration core.

This file defines the LockRegistry, the in-memory state machine arbitrating
concurrent node edits: per-zone node locks and per-zone startpoint
assignments. None of its operations fail; contention is expressed as partial
result subsets. Nothing here is persisted, a process restart clears all locks.
*/
package collab

import (
	"sync"

	"github.com/ArchSirius/log3900-server/internal/app/zone"
)

// LockRegistry tracks which user holds each node lock and each startpoint
// assignment, keyed by zone. Constructed once per server process and shared
// by every connection.
type LockRegistry struct {
	mu sync.Mutex

	// locks maps zoneID -> nodeID -> owning userID.
	locks map[string]map[string]string

	// startpoints maps zoneID -> nodeID -> assigned userID.
	startpoints map[string]map[string]string
}

// NewLockRegistry constructs an empty LockRegistry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{
		locks:       make(map[string]map[string]string),
		startpoints: make(map[string]map[string]string),
	}
}

// IsLocked reports whether the node currently holds a lock.
func (r *LockRegistry) IsLocked(zoneID, nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.locks[zoneID][nodeID]
	return ok
}

// OwnerOf returns the user holding the node's lock, if any.
func (r *LockRegistry) OwnerOf(zoneID, nodeID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.locks[zoneID][nodeID]
	return owner, ok
}

// HasAccess reports whether the user may mutate the node: true iff the node
// is unlocked or locked by that same user. This is the single gate consulted
// before any mutating node operation.
func (r *LockRegistry) HasAccess(zoneID, nodeID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.locks[zoneID][nodeID]
	return !ok || owner == userID
}

// Lock attempts to lock each requested node for the user and returns the
// successfully locked subset. Nodes locked by another user are skipped
// silently; re-locking a node the user already owns counts as success.
func (r *LockRegistry) Lock(zoneID string, nodeIDs []string, userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	locked := make([]string, 0, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		if nodeID == "" {
			continue
		}
		owner, ok := r.locks[zoneID][nodeID]
		switch {
		case !ok:
			if r.locks[zoneID] == nil {
				r.locks[zoneID] = make(map[string]string)
			}
			r.locks[zoneID][nodeID] = userID
			locked = append(locked, nodeID)
		case owner == userID:
			locked = append(locked, nodeID)
		}
	}
	return locked
}

// Unlock releases each requested node currently locked by the user and
// returns the successfully unlocked subset. Nodes locked by someone else, or
// not locked at all, are skipped silently.
func (r *LockRegistry) Unlock(zoneID string, nodeIDs []string, userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	unlocked := make([]string, 0, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		if owner, ok := r.locks[zoneID][nodeID]; ok && owner == userID {
			delete(r.locks[zoneID], nodeID)
			unlocked = append(unlocked, nodeID)
		}
	}
	r.pruneLocks(zoneID)
	return unlocked
}

// ReleaseUser frees every lock the user holds in the zone and returns the
// freed node ids. Used by the opt-in disconnect cleanup policy.
func (r *LockRegistry) ReleaseUser(zoneID, userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var freed []string
	for nodeID, owner := range r.locks[zoneID] {
		if owner == userID {
			delete(r.locks[zoneID], nodeID)
			freed = append(freed, nodeID)
		}
	}
	r.pruneLocks(zoneID)
	return freed
}

// ZoneLocks returns the lock entries for the zone's currently locked nodes.
func (r *LockRegistry) ZoneLocks(z *zone.Zone) []LockEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := []LockEntry{}
	for _, n := range z.Nodes {
		if owner, ok := r.locks[z.ID][n.ID]; ok {
			entries = append(entries, LockEntry{NodeID: n.ID, UserID: owner})
		}
	}
	return entries
}

// TryAssignStartpoint scans the zone's startpoint nodes in document order and
// assigns the first unassigned one to the user. It returns false if the user
// already holds a startpoint in this zone or none are free.
func (r *LockRegistry) TryAssignStartpoint(z *zone.Zone, userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, assignee := range r.startpoints[z.ID] {
		if assignee == userID {
			return "", false
		}
	}
	for _, n := range z.StartNodes() {
		if _, taken := r.startpoints[z.ID][n.ID]; taken {
			continue
		}
		if r.startpoints[z.ID] == nil {
			r.startpoints[z.ID] = make(map[string]string)
		}
		r.startpoints[z.ID][n.ID] = userID
		return n.ID, true
	}
	return "", false
}

// UnassignStartpoint releases the user's startpoint in the zone, if any, and
// returns the freed node id.
func (r *LockRegistry) UnassignStartpoint(zoneID, userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for nodeID, assignee := range r.startpoints[zoneID] {
		if assignee == userID {
			delete(r.startpoints[zoneID], nodeID)
			if len(r.startpoints[zoneID]) == 0 {
				delete(r.startpoints, zoneID)
			}
			return nodeID, true
		}
	}
	return "", false
}

// StartpointUser returns the user assigned to the startpoint node, if any.
func (r *LockRegistry) StartpointUser(zoneID, nodeID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	assignee, ok := r.startpoints[zoneID][nodeID]
	return assignee, ok
}

// AssignedStartpoints returns the zone's currently assigned startpoints.
func (r *LockRegistry) AssignedStartpoints(z *zone.Zone) []LockEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := []LockEntry{}
	for _, n := range z.StartNodes() {
		if assignee, ok := r.startpoints[z.ID][n.ID]; ok {
			entries = append(entries, LockEntry{NodeID: n.ID, UserID: assignee})
		}
	}
	return entries
}

// pruneLocks drops the zone's lock map once empty. Caller holds r.mu.
func (r *LockRegistry) pruneLocks(zoneID string) {
	if m, ok := r.locks[zoneID]; ok && len(m) == 0 {
		delete(r.locks, zoneID)
	}
}
