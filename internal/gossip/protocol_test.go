package gossip

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mcastellin/clustergossip/internal/netio"
	"github.com/mcastellin/clustergossip/internal/wire"
)

func newTestGossiper(t *testing.T, pubKey string, now int64) *Gossiper {
	t.Helper()
	self := NewNodeRecord(pubKey, now)
	self.SetFull("127.0.0.1", 1)
	return &Gossiper{
		table:     NewMembershipTable(self, zap.NewNop()),
		seeds:     NewSeedList(),
		syncCount: DefaultSyncCount,
		logger:    zap.NewNop(),
		closing:   make(chan chan error),
		now:       time.Now,
	}
}

// TestBuildSyncIncludesSelfAndTargetDigests covers testable property 6: a
// SYNC packet carries at most SYNC_COUNT+2 digests (self + target + sample).
func TestBuildSyncIncludesSelfAndTargetDigests(t *testing.T) {
	g := newTestGossiper(t, "self", 100)
	target := peerRecord("target", true, 1, 100)
	g.table.Insert(target)

	for i := 0; i < 20; i++ {
		g.table.Insert(peerRecord("peer"+string(rune('a'+i)), true, 1, 100))
	}

	pkt := g.buildSync(target)
	if pkt.Phase != wire.PhaseSync {
		t.Fatalf("expected SYNC phase, got %v", pkt.Phase)
	}
	if len(pkt.GNodes) > g.syncCount+2 {
		t.Fatalf("expected at most %d gnodes, got %d", g.syncCount+2, len(pkt.GNodes))
	}

	first, err := pkt.GNodes[0].AsDigest()
	if err != nil {
		t.Fatalf("expected first gnode to be self digest: %v", err)
	}
	if first.PubID != g.table.Self().PubID {
		t.Fatalf("expected first gnode to be self, got %s", first.PubID)
	}

	second, err := pkt.GNodes[1].AsDigest()
	if err != nil {
		t.Fatalf("expected second gnode to be target digest: %v", err)
	}
	if second.PubID != target.PubID {
		t.Fatalf("expected second gnode to be target, got %s", second.PubID)
	}
}

func TestBuildSyncSeedFallbackOmitsTarget(t *testing.T) {
	g := newTestGossiper(t, "self", 100)
	pkt := g.buildSync(nil)

	self, err := pkt.GNodes[0].AsDigest()
	if err != nil {
		t.Fatalf("expected first gnode to be self digest: %v", err)
	}
	if self.PubID != g.table.Self().PubID {
		t.Fatalf("expected self digest first, got %s", self.PubID)
	}
	if len(pkt.GNodes) != 1 {
		t.Fatalf("expected only the self digest without a target, got %d gnodes", len(pkt.GNodes))
	}
}

// recvReply binds a throwaway client endpoint and a server endpoint, wires
// the server as g's own endpoint, invokes op with the client's address as
// the "from" sender, and returns the single reply packet g.sendPacket writes
// back to the client.
func recvReply(t *testing.T, g *Gossiper, op func(from *net.UDPAddr)) wire.Packet {
	t.Helper()

	client, err := netio.Open("127.0.0.1", 0, netio.RecvBufDefault)
	if err != nil {
		t.Fatalf("open client endpoint failed: %v", err)
	}
	defer client.Close()

	server, err := netio.Open("127.0.0.1", 0, netio.RecvBufDefault)
	if err != nil {
		t.Fatalf("open server endpoint failed: %v", err)
	}
	defer server.Close()
	g.endpoint = server

	op(client.LocalAddr())

	var pkt wire.Packet
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var buf []byte
		if err := client.Poll(func(b []byte, from *net.UDPAddr) {
			buf = append([]byte(nil), b...)
		}); err != nil {
			t.Fatalf("poll failed: %v", err)
		}
		if buf != nil {
			decoded, err := wire.Decode(buf)
			if err != nil {
				t.Fatalf("failed to decode reply: %v", err)
			}
			pkt = decoded
			break
		}
	}
	return pkt
}

func TestHandleSyncRepliesWithPullRequestForUnknownPeer(t *testing.T) {
	g := newTestGossiper(t, "self", 100)

	pkt := recvReply(t, g, func(from *net.UDPAddr) {
		g.handleSync(wire.Packet{
			Phase: wire.PhaseSync,
			GNodes: []wire.Entry{
				wire.NewDigestEntry(wire.MinimalWire{PubID: g.table.Self().PubID, Version: 0, AliveTime: 100}),
				wire.NewDigestEntry(wire.MinimalWire{PubID: "UNKNOWN", Version: 1, AliveTime: 1}),
			},
		}, from)
	})

	if pkt.Phase != wire.PhaseAck1 {
		t.Fatalf("expected ACK1 reply, got %v", pkt.Phase)
	}
	found := false
	for _, e := range pkt.GNodes {
		if e.Kind() == wire.EntryPullRequest {
			pr, _ := e.AsPullRequest()
			if pr.PubID == "UNKNOWN" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected a pull-request entry for the unknown peer, got %+v", pkt.GNodes)
	}
}

func TestHandleSyncAppendsSelfFullRecordWhenAbsent(t *testing.T) {
	g := newTestGossiper(t, "self", 100)

	pkt := recvReply(t, g, func(from *net.UDPAddr) {
		g.handleSync(wire.Packet{Phase: wire.PhaseSync, GNodes: []wire.Entry{}}, from)
	})

	found := false
	for _, e := range pkt.GNodes {
		if e.Kind() == wire.EntryFull {
			full, _ := e.AsFull()
			if full.PubID == g.table.Self().PubID {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected responder's own FullRecord when SYNC omitted it, got %+v", pkt.GNodes)
	}
}

func TestHandleAck1RepliesWithFullRecordOnPullRequest(t *testing.T) {
	g := newTestGossiper(t, "self", 100)
	peer := peerRecord("peer", true, 2, 50)
	g.table.Insert(peer)

	pkt := recvReply(t, g, func(from *net.UDPAddr) {
		g.handleAck1(wire.Packet{
			Phase:  wire.PhaseAck1,
			GNodes: []wire.Entry{wire.NewPullRequestEntry(peer.PubID)},
		}, from)
	})

	if pkt.Phase != wire.PhaseAck2 {
		t.Fatalf("expected ACK2 reply, got %v", pkt.Phase)
	}
	full, err := pkt.GNodes[0].AsFull()
	if err != nil {
		t.Fatalf("expected full record entry: %v", err)
	}
	if full.PubID != peer.PubID {
		t.Fatalf("expected reply for %s, got %s", peer.PubID, full.PubID)
	}
}

func TestHandleAck2MergesFullRecords(t *testing.T) {
	g := newTestGossiper(t, "self", 100)
	peer := peerRecord("peer", true, 1, 50)
	g.table.Insert(peer)

	newer := peer.ToWire()
	newer.Version = 5
	newer.AliveTime = 999

	g.handleAck2(wire.Packet{Phase: wire.PhaseAck2, GNodes: []wire.Entry{wire.NewFullEntry(newer)}}, nil)

	got, _ := g.table.Find(peer.PubID)
	if got.Version != 5 || got.AliveTime != 999 {
		t.Fatalf("expected merged version=5 alive_time=999, got version=%d alive_time=%d", got.Version, got.AliveTime)
	}
}
