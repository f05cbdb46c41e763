// Package wire implements the self-describing codec adapter of §6.2 and the
// exact on-wire field names of §6.5. encoding/json is used as the concrete
// encoder: the spec only requires field names to be stable, and the teacher
// package reaches for encoding/json itself (pkg/hashing.go) rather than a
// third-party serializer, so this repo follows suit.
package wire

import (
	"encoding/json"
	"fmt"
)

// Phase identifies one of the three anti-entropy exchange steps (§4.3).
type Phase int

const (
	PhaseSync Phase = 0
	PhaseAck1 Phase = 1
	PhaseAck2 Phase = 2
)

func (p Phase) String() string {
	switch p {
	case PhaseSync:
		return "SYNC"
	case PhaseAck1:
		return "ACK1"
	case PhaseAck2:
		return "ACK2"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Payload is the opaque application payload attached to a node record: a
// nested tree of primitives, arrays and sub-objects (§3).
type Payload map[string]any

// DeepCopy returns an independent copy of the payload by round-tripping it
// through the codec, which is sufficient for a tree of JSON-compatible
// values and mirrors the original's json_object_deep_copy.
func (p Payload) DeepCopy() Payload {
	if p == nil {
		return Payload{}
	}
	buf, err := json.Marshal(p)
	if err != nil {
		return Payload{}
	}
	out := Payload{}
	if err := json.Unmarshal(buf, &out); err != nil {
		return Payload{}
	}
	return out
}

// NodeWire is the complete on-wire representation of a node record (§6.5),
// the FullRecord form of §4.1.
type NodeWire struct {
	FullNode   int      `json:"full_node"`
	PublicIP   string   `json:"public_ipaddr"`
	PublicPort int      `json:"public_port"`
	PubKey     string   `json:"pubkey"`
	PubID      string   `json:"pubid"`
	Version    int64    `json:"version"`
	AliveTime  int64    `json:"alive_time"`
	UpdateTime int64    `json:"update_time"`
	Data       Payload  `json:"data"`
}

// MinimalWire is the MinimalDigest form of §4.1: (pub_id, version, alive_time).
type MinimalWire struct {
	PubID     string `json:"pubid"`
	Version   int64  `json:"version"`
	AliveTime int64  `json:"alive_time"`
}

// PullRequest is the short "please send full" form used in ACK1 (§4.3).
type PullRequest struct {
	PubID string `json:"pubid"`
}

// EntryKind classifies a parsed gnodes array element by probing which
// fields are present, the Go analogue of the C contract's "get-by-name with
// type probe".
type EntryKind int

const (
	EntryUnknown EntryKind = iota
	EntryPullRequest
	EntryDigest // MinimalDigest or alive-time correction; both share the same shape
	EntryFull
)

// Entry is one raw element of a gnodes array. It is decoded generically so
// a single array can carry heterogeneous shapes across a phase.
type Entry map[string]json.RawMessage

// Kind classifies the entry by the fields it carries.
func (e Entry) Kind() EntryKind {
	_, hasPubKey := e["pubkey"]
	if hasPubKey {
		return EntryFull
	}
	_, hasVersion := e["version"]
	_, hasAlive := e["alive_time"]
	if hasVersion && hasAlive {
		return EntryDigest
	}
	if _, hasPubID := e["pubid"]; hasPubID {
		return EntryPullRequest
	}
	return EntryUnknown
}

// AsDigest decodes the entry as a MinimalDigest / alive-time correction.
func (e Entry) AsDigest() (MinimalWire, error) {
	var m MinimalWire
	raw, _ := json.Marshal(e)
	if err := json.Unmarshal(raw, &m); err != nil {
		return MinimalWire{}, fmt.Errorf("malformed digest entry: %w", err)
	}
	return m, nil
}

// AsPullRequest decodes the entry as a short pull request.
func (e Entry) AsPullRequest() (PullRequest, error) {
	var p PullRequest
	raw, _ := json.Marshal(e)
	if err := json.Unmarshal(raw, &p); err != nil {
		return PullRequest{}, fmt.Errorf("malformed pull-request entry: %w", err)
	}
	return p, nil
}

// AsFull decodes the entry as a FullRecord.
func (e Entry) AsFull() (NodeWire, error) {
	var n NodeWire
	raw, _ := json.Marshal(e)
	if err := json.Unmarshal(raw, &n); err != nil {
		return NodeWire{}, fmt.Errorf("malformed full-record entry: %w", err)
	}
	if n.PubID == "" || n.PubKey == "" {
		return NodeWire{}, fmt.Errorf("malformed full-record entry: missing pubid/pubkey")
	}
	return n, nil
}

func toEntry(v any) Entry {
	buf, err := json.Marshal(v)
	if err != nil {
		return Entry{}
	}
	var e Entry
	if err := json.Unmarshal(buf, &e); err != nil {
		return Entry{}
	}
	return e
}

// NewFullEntry builds a gnodes array element from a FullRecord.
func NewFullEntry(n NodeWire) Entry { return toEntry(n) }

// NewDigestEntry builds a gnodes array element from a MinimalDigest /
// alive-time correction.
func NewDigestEntry(m MinimalWire) Entry { return toEntry(m) }

// NewPullRequestEntry builds the short "please send full" gnodes element.
func NewPullRequestEntry(pubID string) Entry { return toEntry(PullRequest{PubID: pubID}) }

// Packet is the top-level wire object (§4.3, §6.5).
type Packet struct {
	Phase  Phase   `json:"phase"`
	GNodes []Entry `json:"gnodes"`
}

// Encode dumps the packet to its wire byte form.
func Encode(p Packet) ([]byte, error) {
	return json.Marshal(p)
}

// Decode parses a wire byte form into a Packet. It returns an error for
// anything that fails to parse or is missing the required top-level fields,
// matching the "Malformed" handling of §7.
func Decode(buf []byte) (Packet, error) {
	var raw struct {
		Phase  *Phase  `json:"phase"`
		GNodes []Entry `json:"gnodes"`
	}
	if err := json.Unmarshal(buf, &raw); err != nil {
		return Packet{}, fmt.Errorf("malformed packet: %w", err)
	}
	if raw.Phase == nil || raw.GNodes == nil {
		return Packet{}, fmt.Errorf("malformed packet: missing phase or gnodes")
	}
	return Packet{Phase: *raw.Phase, GNodes: raw.GNodes}, nil
}
