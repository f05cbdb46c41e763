package gossip

import (
	"container/heap"
	"math/rand"

	"go.uber.org/zap"
)

// MembershipTable is the in-memory index of node records described in §3.2.
// It is driven by a single cooperative loop (§5): the gossip tick and the
// inbound packet handler never run concurrently, so no mutex guards it.
type MembershipTable struct {
	self    *NodeRecord
	records map[string]*NodeRecord
	active  map[string]*NodeRecord

	// livenessHeap orders active records by alive_time so the stale sweep
	// (§3 lifecycle, §4.5) can find eviction candidates without a full
	// scan. The min-heap shape is adapted from objects-cache's
	// cacheItemHeap, which orders cache entries by ExpiryTime the same way.
	livenessHeap livenessHeap

	logger *zap.Logger
}

// NewMembershipTable creates a table seeded with the self-record. The
// self-record is always present and is never evicted (§3 invariant).
func NewMembershipTable(self *NodeRecord, logger *zap.Logger) *MembershipTable {
	t := &MembershipTable{
		self:         self,
		records:      map[string]*NodeRecord{},
		active:       map[string]*NodeRecord{},
		livenessHeap: livenessHeap{},
		logger:       logger,
	}
	t.records[self.PubID] = self
	heap.Init(&t.livenessHeap)
	return t
}

// Self returns the local node's own record.
func (t *MembershipTable) Self() *NodeRecord { return t.self }

// Find looks up a record by pub_id.
func (t *MembershipTable) Find(pubID string) (*NodeRecord, bool) {
	r, ok := t.records[pubID]
	return r, ok
}

// Insert adds a brand-new record to the table, and to the active subset iff
// full_node. Fails with ErrDuplicate if pub_id is already present (§4.2).
func (t *MembershipTable) Insert(rec *NodeRecord) error {
	if _, exists := t.records[rec.PubID]; exists {
		return ErrDuplicate
	}
	t.records[rec.PubID] = rec
	t.promote(rec)
	return nil
}

// promote adds rec to the active subset and liveness heap if it qualifies
// and is not already tracked there.
func (t *MembershipTable) promote(rec *NodeRecord) {
	if !rec.FullNode {
		return
	}
	if _, ok := t.active[rec.PubID]; ok {
		return
	}
	t.active[rec.PubID] = rec
	heap.Push(&t.livenessHeap, &livenessEntry{pubID: rec.PubID, aliveTime: rec.AliveTime})
}

// MergeMinimalAction is the outcome of reconciling an incoming MinimalDigest
// against local state (§4.2 merge_minimal, ACK1 table of §4.3).
type MergeMinimalAction int

const (
	// MinimalNeedFull: unknown locally, or the digest is newer than local —
	// the responder has no data to offer and must ask for the FullRecord.
	MinimalNeedFull MergeMinimalAction = iota
	// MinimalAdopted: same version, digest's alive_time was adopted.
	MinimalAdopted
	// MinimalCorrection: same version, local alive_time is fresher — report it.
	MinimalCorrection
	// MinimalLocalFull: local version is strictly newer — send the local
	// FullRecord back.
	MinimalLocalFull
)

// MergeMinimalResult carries the data needed to act on a MergeMinimalAction.
type MergeMinimalResult struct {
	Action    MergeMinimalAction
	PubID     string
	Version   int64 // valid for MinimalCorrection: local's version (== digest's)
	AliveTime int64 // valid for MinimalCorrection: local's alive_time
	Local     *NodeRecord // valid for MinimalLocalFull
}

// MergeMinimal reconciles an incoming MinimalDigest against local state
// without mutating anything except a possible alive_time adoption (§4.2).
func (t *MembershipTable) MergeMinimal(pubID string, version, aliveTime int64) MergeMinimalResult {
	local, ok := t.records[pubID]
	if !ok || version > local.Version {
		return MergeMinimalResult{Action: MinimalNeedFull, PubID: pubID}
	}
	if version == local.Version {
		if aliveTime >= local.AliveTime {
			local.AliveTime = aliveTime
			t.touchLiveness(local)
			return MergeMinimalResult{Action: MinimalAdopted}
		}
		return MergeMinimalResult{
			Action: MinimalCorrection, PubID: pubID,
			Version: local.Version, AliveTime: local.AliveTime,
		}
	}
	return MergeMinimalResult{Action: MinimalLocalFull, Local: local}
}

// MergeFullAction is the outcome of reconciling an incoming FullRecord
// against local state (§4.4 merge rules 1-4).
type MergeFullAction int

const (
	FullInserted      MergeFullAction = iota // unknown pub_id: inserted
	FullOverwritten                          // incoming version > local: overwritten
	FullAliveAdopted                         // same version: alive_time adopted if newer
	FullLocalWins                            // incoming version < local: local should be sent back
	FullIsSelf                               // pub_id matches self: never overwritten
)

// MergeFullResult carries the data needed to act on a MergeFullAction.
type MergeFullResult struct {
	Action MergeFullAction
	Local  *NodeRecord // valid for FullLocalWins
}

// MergeFull reconciles an incoming FullRecord against local state (§4.4).
// The self-record is never overwritten by inbound data (§4.4 closing note).
func (t *MembershipTable) MergeFull(rec *NodeRecord) MergeFullResult {
	if rec.PubID == t.self.PubID {
		return MergeFullResult{Action: FullIsSelf}
	}
	local, ok := t.records[rec.PubID]
	if !ok {
		t.Insert(rec) //nolint:errcheck — just verified absent above
		return MergeFullResult{Action: FullInserted}
	}
	switch {
	case rec.Version > local.Version:
		t.overwrite(local, rec)
		return MergeFullResult{Action: FullOverwritten}
	case rec.Version == local.Version:
		if rec.AliveTime > local.AliveTime {
			local.AliveTime = rec.AliveTime
			t.touchLiveness(local)
		}
		return MergeFullResult{Action: FullAliveAdopted}
	default:
		return MergeFullResult{Action: FullLocalWins, Local: local}
	}
}

// overwrite copies incoming's scalar attributes and payload onto local in
// place, and promotes/demotes its active-subset membership if full_node
// changed (§4.4 rule 1).
func (t *MembershipTable) overwrite(local, incoming *NodeRecord) {
	wasFull := local.FullNode
	local.FullNode = incoming.FullNode
	local.PublicIP = incoming.PublicIP
	local.PublicPort = incoming.PublicPort
	local.Version = incoming.Version
	local.AliveTime = incoming.AliveTime
	local.UpdateTime = incoming.UpdateTime
	local.Payload = incoming.Payload.DeepCopy()

	switch {
	case !wasFull && local.FullNode:
		t.promote(local)
	case wasFull && !local.FullNode:
		delete(t.active, local.PubID)
	default:
		t.touchLiveness(local)
	}
}

// RandomActive returns a uniformly random record from the active subset,
// failing with ErrEmpty when it has no entries (§4.2).
func (t *MembershipTable) RandomActive() (*NodeRecord, error) {
	if len(t.active) == 0 {
		return nil, ErrEmpty
	}
	idx := rand.Intn(len(t.active))
	i := 0
	for _, rec := range t.active {
		if i == idx {
			return rec, nil
		}
		i++
	}
	panic("unreachable")
}

// MarkStale removes pub_id from the active subset without deleting the
// record itself (§4.2). The non-owning active subset is never responsible
// for freeing a record.
func (t *MembershipTable) MarkStale(pubID string) {
	delete(t.active, pubID)
}

// IsActive reports whether pub_id is currently part of the active subset.
func (t *MembershipTable) IsActive(pubID string) bool {
	_, ok := t.active[pubID]
	return ok
}

// ActiveCount returns the size of the active subset.
func (t *MembershipTable) ActiveCount() int { return len(t.active) }

// Count returns the number of known records, self included.
func (t *MembershipTable) Count() int { return len(t.records) }

// Snapshot iterates all records. Order is unspecified but stable for a
// single traversal (§4.2).
func (t *MembershipTable) Snapshot() []*NodeRecord {
	out := make([]*NodeRecord, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, r)
	}
	return out
}

// EvictStale removes from the active subset (but never from the table)
// every record whose alive_time has fallen behind horizon seconds from now
// (§3 MembershipTable lifecycle, §4.2 mark_stale: "without deleting the
// record"). Active-subset removal never destroys a record — the table
// remains the sole owner and keeps the stale entry around so it can be
// re-promoted if it becomes reachable again. It never touches the
// self-record. The liveness heap bounds the work to the stale prefix
// instead of a full scan.
func (t *MembershipTable) EvictStale(now int64, horizonSeconds int64) []string {
	var removed []string
	for t.livenessHeap.Len() > 0 {
		top := t.livenessHeap[0]
		rec, ok := t.records[top.pubID]
		if !ok || !rec.FullNode || rec.PubID == t.self.PubID {
			heap.Pop(&t.livenessHeap)
			continue
		}
		if rec.AliveTime != top.aliveTime {
			// stale heap entry: liveness advanced since it was pushed,
			// re-sync and keep scanning.
			heap.Pop(&t.livenessHeap)
			heap.Push(&t.livenessHeap, &livenessEntry{pubID: rec.PubID, aliveTime: rec.AliveTime})
			continue
		}
		if now-rec.AliveTime <= horizonSeconds {
			break
		}
		heap.Pop(&t.livenessHeap)
		delete(t.active, rec.PubID)
		removed = append(removed, rec.PubID)
	}
	return removed
}

// touchLiveness re-orders rec's entry in the liveness heap after its
// alive_time changed. Lazily resynced rather than tracked by index, which
// keeps the heap entry type free of back-pointers, trading an occasional
// stale-pop-and-reinsert (handled in EvictStale) for simplicity.
func (t *MembershipTable) touchLiveness(rec *NodeRecord) {
	if rec.FullNode && rec.PubID != t.self.PubID {
		heap.Push(&t.livenessHeap, &livenessEntry{pubID: rec.PubID, aliveTime: rec.AliveTime})
	}
}

// livenessEntry is one node's position in the liveness heap.
type livenessEntry struct {
	pubID     string
	aliveTime int64
}

// livenessHeap implements container/heap.Interface, ordering entries by
// alive_time ascending so the stalest record surfaces first — the same
// shape as objects-cache's cacheItemHeap ordering by ExpiryTime.
type livenessHeap []*livenessEntry

func (h livenessHeap) Len() int            { return len(h) }
func (h livenessHeap) Less(i, j int) bool  { return h[i].aliveTime < h[j].aliveTime }
func (h livenessHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *livenessHeap) Push(v any) {
	*h = append(*h, v.(*livenessEntry))
}
func (h *livenessHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
