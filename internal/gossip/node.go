package gossip

import (
	"fmt"

	"github.com/mcastellin/clustergossip/internal/idhash"
	"github.com/mcastellin/clustergossip/internal/wire"
)

// NodeRecord is the versioned per-peer state described in §3. pub_id is
// derived once from pub_key and never changes for the life of the record.
type NodeRecord struct {
	PubKey     string
	PubID      string
	FullNode   bool
	PublicIP   string
	PublicPort int
	Version    int64
	AliveTime  int64
	UpdateTime int64
	Payload    wire.Payload
}

// NewNodeRecord derives pub_id from pubKey and initializes a fresh record
// with version=0 and both timestamps set to now (§4.1 new).
func NewNodeRecord(pubKey string, now int64) *NodeRecord {
	return &NodeRecord{
		PubKey:     pubKey,
		PubID:      idhash.PubID(pubKey),
		FullNode:   false,
		Version:    0,
		AliveTime:  now,
		UpdateTime: now,
		Payload:    wire.Payload{},
	}
}

// SetFull marks the record reachable at (ip, port). Idempotent when the
// address is unchanged.
func (n *NodeRecord) SetFull(ip string, port int) {
	if n.FullNode && n.PublicIP == ip && n.PublicPort == port {
		return
	}
	n.FullNode = true
	n.PublicIP = ip
	n.PublicPort = port
}

// UnsetFull clears the reachable flag and address.
func (n *NodeRecord) UnsetFull() {
	n.FullNode = false
	n.PublicIP = ""
	n.PublicPort = 0
}

// Dial reports the address to advertise this record is reachable at. The
// caller must check FullNode before using it: a non-full record must never
// be dialed (§3 invariant).
func (n *NodeRecord) Dial() string {
	return fmt.Sprintf("%s:%d", n.PublicIP, n.PublicPort)
}

// MinimalDigest produces the compact (pub_id, version, alive_time) form
// used in SYNC request bodies (§4.1).
func (n *NodeRecord) MinimalDigest() wire.MinimalWire {
	return wire.MinimalWire{PubID: n.PubID, Version: n.Version, AliveTime: n.AliveTime}
}

// ToWire produces the complete FullRecord form (§4.1).
func (n *NodeRecord) ToWire() wire.NodeWire {
	full := 0
	if n.FullNode {
		full = 1
	}
	return wire.NodeWire{
		FullNode:   full,
		PublicIP:   n.PublicIP,
		PublicPort: n.PublicPort,
		PubKey:     n.PubKey,
		PubID:      n.PubID,
		Version:    n.Version,
		AliveTime:  n.AliveTime,
		UpdateTime: n.UpdateTime,
		Data:       n.Payload.DeepCopy(),
	}
}

// FromWire parses and validates a FullRecord, failing with ErrMalformed if
// a required field is missing or mistyped (§4.1 from_wire).
func FromWire(w wire.NodeWire) (*NodeRecord, error) {
	if w.PubID == "" || w.PubKey == "" {
		return nil, fmt.Errorf("%w: missing pubid/pubkey", ErrMalformed)
	}
	if expected := idhash.PubID(w.PubKey); expected != w.PubID {
		return nil, fmt.Errorf("%w: pubid does not match digest(pubkey)", ErrMalformed)
	}
	n := &NodeRecord{
		PubKey:     w.PubKey,
		PubID:      w.PubID,
		FullNode:   w.FullNode != 0,
		PublicIP:   w.PublicIP,
		PublicPort: w.PublicPort,
		Version:    w.Version,
		AliveTime:  w.AliveTime,
		UpdateTime: w.UpdateTime,
		Payload:    w.Data.DeepCopy(),
	}
	return n, nil
}

// UpdateFromWire overwrites this record's scalar attributes and payload in
// place (§4.1 update_from_wire), leaving pub_key/pub_id untouched.
func (n *NodeRecord) UpdateFromWire(w wire.NodeWire) {
	n.FullNode = w.FullNode != 0
	n.PublicIP = w.PublicIP
	n.PublicPort = w.PublicPort
	n.Version = w.Version
	n.AliveTime = w.AliveTime
	n.UpdateTime = w.UpdateTime
	n.Payload = w.Data.DeepCopy()
}
