package gossip

import (
	"net"
	"testing"

	"github.com/mcastellin/clustergossip/internal/wire"
)

// TestFullExchangeConverges drives a complete SYNC/ACK1/ACK2 round between
// two gossipers over real loopback sockets. Covers testable property 4:
// after one exchange both tables hold the union of records at the
// higher-or-equal version.
func TestFullExchangeConverges(t *testing.T) {
	a := newTestGossiper(t, "node-a", 100)
	a.table.Self().SetFull("127.0.0.1", 1)

	b := newTestGossiper(t, "node-b", 100)
	b.table.Self().SetFull("127.0.0.1", 2)

	// a already knows a third peer at a version b has never seen, and
	// already knows b itself (it is about to target it directly).
	thirdParty := peerRecord("third-party", true, 7, 500)
	a.table.Insert(thirdParty)
	bKnownToA := peerRecord(b.table.Self().PubKey, true, b.table.Self().Version, b.table.Self().AliveTime)
	a.table.Insert(bKnownToA)

	sync := a.buildSync(bKnownToA)

	ack1 := recvReply(t, b, func(from *net.UDPAddr) {
		b.handleSync(sync, from)
	})
	ack2 := recvReply(t, a, func(from *net.UDPAddr) {
		a.handleAck1(ack1, from)
	})
	b.handleAck2(ack2, nil) // terminal: no reply expected

	learned, ok := b.table.Find(thirdParty.PubID)
	if !ok {
		t.Fatalf("expected b to learn about third-party after the exchange")
	}
	if learned.Version != thirdParty.Version {
		t.Fatalf("expected b's copy at version %d, got %d", thirdParty.Version, learned.Version)
	}

	if _, ok := b.table.Find(a.table.Self().PubID); !ok {
		t.Fatalf("expected b to learn about a after the exchange")
	}
}

// TestFirstContactThroughSeedLearnsBothWays mirrors scenario S1's shape at
// the protocol layer: a bare SYNC naming only the initiator's own digest
// still lets the responder learn of the initiator, and the initiator learns
// the responder via the !has_self FullRecord append.
func TestFirstContactThroughSeedLearnsBothWays(t *testing.T) {
	client := newTestGossiper(t, "client", 100)
	seed := newTestGossiper(t, "seed", 100)
	seed.table.Self().SetFull("127.0.0.1", 25688)

	sync := client.buildSync(nil) // seed-fallback shape: only self digest

	ack1 := recvReply(t, seed, func(from *net.UDPAddr) {
		seed.handleSync(sync, from)
	})

	if ack1.Phase != wire.PhaseAck1 {
		t.Fatalf("expected ACK1 reply, got %v", ack1.Phase)
	}

	foundSeedFull := false
	for _, e := range ack1.GNodes {
		if e.Kind() == wire.EntryFull {
			full, _ := e.AsFull()
			if full.PubID == seed.table.Self().PubID {
				foundSeedFull = true
			}
		}
	}
	if !foundSeedFull {
		t.Fatalf("expected seed to append its own FullRecord on first contact, got %+v", ack1.GNodes)
	}

	ack2 := recvReply(t, client, func(from *net.UDPAddr) {
		client.handleAck1(ack1, from)
	})
	seed.handleAck2(ack2, nil)

	if _, ok := client.table.Find(seed.table.Self().PubID); !ok {
		t.Fatalf("expected client to learn the seed from the ACK1 FullRecord")
	}
	if _, ok := seed.table.Find(client.table.Self().PubID); !ok {
		t.Fatalf("expected seed to learn the client from the ACK2 FullRecord")
	}
}
