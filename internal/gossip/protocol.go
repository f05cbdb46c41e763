package gossip

import (
	"net"

	"go.uber.org/zap"

	"github.com/mcastellin/clustergossip/internal/wire"
)

// buildSync constructs a SYNC packet (§4.3). target is nil for seed
// fallback, which per spec omits the target digest entirely.
func (g *Gossiper) buildSync(target *NodeRecord) wire.Packet {
	self := g.table.Self()
	gnodes := make([]wire.Entry, 0, g.syncCount+2)
	gnodes = append(gnodes, wire.NewDigestEntry(self.MinimalDigest()))

	var targetPubID string
	if target != nil {
		gnodes = append(gnodes, wire.NewDigestEntry(target.MinimalDigest()))
		targetPubID = target.PubID
	}

	pool := make([]*NodeRecord, 0, g.table.Count())
	for _, r := range g.table.Snapshot() {
		if r.PubID == self.PubID || r.PubID == targetPubID {
			continue
		}
		pool = append(pool, r)
	}
	for _, r := range sampleDigests(pool, g.syncCount) {
		gnodes = append(gnodes, wire.NewDigestEntry(r.MinimalDigest()))
	}

	return wire.Packet{Phase: wire.PhaseSync, GNodes: gnodes}
}

// handlePacket decodes and dispatches one inbound datagram. It is the
// registered callback for the datagram endpoint's Poll (§6.1). Packets that
// fail to parse, or carry an unknown phase, are logged and dropped (§4.3
// "Unknown / malformed packets").
func (g *Gossiper) handlePacket(buf []byte, from *net.UDPAddr) {
	pkt, err := wire.Decode(buf)
	if err != nil {
		g.logger.Warn("dropping malformed packet", zap.Error(err), zap.Stringer("from", from))
		return
	}

	switch pkt.Phase {
	case wire.PhaseSync:
		g.handleSync(pkt, from)
	case wire.PhaseAck1:
		g.handleAck1(pkt, from)
	case wire.PhaseAck2:
		g.handleAck2(pkt, from)
	default:
		g.logger.Warn("dropping packet with unknown phase", zap.Int("phase", int(pkt.Phase)))
	}
}

// handleSync processes an inbound SYNC and replies with ACK1 (§4.3 ACK1
// table). If the SYNC never mentions the responder's own pub_id, the
// responder appends its own FullRecord so a first contact made through a
// seed lets the initiator learn the responder immediately (§9 design
// notes, !has_self).
func (g *Gossiper) handleSync(pkt wire.Packet, from *net.UDPAddr) {
	selfID := g.table.Self().PubID
	hasSelf := false
	reply := make([]wire.Entry, 0, len(pkt.GNodes))

	for _, e := range pkt.GNodes {
		d, err := e.AsDigest()
		if err != nil {
			g.logger.Warn("dropping malformed SYNC digest", zap.Error(err))
			continue
		}
		if d.PubID == selfID {
			hasSelf = true
			continue
		}

		result := g.table.MergeMinimal(d.PubID, d.Version, d.AliveTime)
		switch result.Action {
		case MinimalNeedFull:
			reply = append(reply, wire.NewPullRequestEntry(result.PubID))
		case MinimalCorrection:
			reply = append(reply, wire.NewDigestEntry(wire.MinimalWire{
				PubID:     result.PubID,
				Version:   result.Version,
				AliveTime: result.AliveTime,
			}))
		case MinimalLocalFull:
			reply = append(reply, wire.NewFullEntry(result.Local.ToWire()))
		case MinimalAdopted:
			// nothing to report back
		}
	}

	if !hasSelf {
		reply = append(reply, wire.NewFullEntry(g.table.Self().ToWire()))
	}

	g.sendPacket(wire.Packet{Phase: wire.PhaseAck1, GNodes: reply}, from)
}

// handleAck1 processes an inbound ACK1 and replies with ACK2 (§4.3 ACK2
// rules). Unlike merge_minimal's ACK1-building use, a digest-shaped entry
// here must yield a FullRecord when local wins, not another digest — ACK2
// only ever carries FullRecord entries.
func (g *Gossiper) handleAck1(pkt wire.Packet, from *net.UDPAddr) {
	reply := make([]wire.Entry, 0, len(pkt.GNodes))

	for _, e := range pkt.GNodes {
		switch e.Kind() {
		case wire.EntryPullRequest:
			pr, err := e.AsPullRequest()
			if err != nil {
				g.logger.Warn("dropping malformed ACK1 pull-request", zap.Error(err))
				continue
			}
			if local, ok := g.table.Find(pr.PubID); ok {
				reply = append(reply, wire.NewFullEntry(local.ToWire()))
			}

		case wire.EntryDigest:
			d, err := e.AsDigest()
			if err != nil {
				g.logger.Warn("dropping malformed ACK1 correction", zap.Error(err))
				continue
			}
			local, ok := g.table.Find(d.PubID)
			if !ok || d.Version > local.Version {
				continue
			}
			if d.Version == local.Version {
				if d.AliveTime >= local.AliveTime {
					local.AliveTime = d.AliveTime
					g.table.touchLiveness(local)
				} else {
					reply = append(reply, wire.NewFullEntry(local.ToWire()))
				}
				continue
			}
			// d.Version < local.Version: local wins, send it back.
			reply = append(reply, wire.NewFullEntry(local.ToWire()))

		case wire.EntryFull:
			full, err := e.AsFull()
			if err != nil {
				g.logger.Warn("dropping malformed ACK1 full record", zap.Error(err))
				continue
			}
			rec, err := FromWire(full)
			if err != nil {
				g.logger.Warn("dropping malformed ACK1 full record", zap.Error(err))
				continue
			}
			if mres := g.table.MergeFull(rec); mres.Action == FullLocalWins {
				reply = append(reply, wire.NewFullEntry(mres.Local.ToWire()))
			}

		default:
			g.logger.Warn("dropping unrecognized ACK1 entry")
		}
	}

	if len(reply) == 0 {
		return
	}
	g.sendPacket(wire.Packet{Phase: wire.PhaseAck2, GNodes: reply}, from)
}

// handleAck2 applies the FullRecord merge rules to each entry and
// terminates the exchange — no reply is sent (§4.3).
func (g *Gossiper) handleAck2(pkt wire.Packet, from *net.UDPAddr) {
	for _, e := range pkt.GNodes {
		full, err := e.AsFull()
		if err != nil {
			g.logger.Warn("dropping malformed ACK2 entry", zap.Error(err))
			continue
		}
		rec, err := FromWire(full)
		if err != nil {
			g.logger.Warn("dropping malformed ACK2 entry", zap.Error(err))
			continue
		}
		g.table.MergeFull(rec)
	}
}

// sendPacket encodes and best-effort sends pkt to remote, logging
// ErrSendFailed on failure per §7 (transient, no retry this tick).
func (g *Gossiper) sendPacket(pkt wire.Packet, remote *net.UDPAddr) {
	buf, err := wire.Encode(pkt)
	if err != nil {
		g.logger.Error("failed to encode packet", zap.Error(err), zap.Stringer("phase", pkt.Phase))
		return
	}
	if _, err := g.endpoint.Send(buf, remote); err != nil {
		g.logger.Warn("send failed", zap.Error(ErrSendFailed), zap.NamedError("cause", err),
			zap.Stringer("phase", pkt.Phase), zap.Stringer("to", remote))
	}
}
