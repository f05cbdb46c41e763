// Package gossip implements the anti-entropy cluster-membership service:
// the node record and merge semantics of §3/§4.1, the membership table of
// §4.2, the three-phase SYNC/ACK1/ACK2 protocol of §4.3/§4.4, and the
// periodic gossip loop of §4.5. It is the core the rest of this repository
// (cmd, internal/wire, internal/netio) is built around.
package gossip

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/mcastellin/clustergossip/internal/netio"
)

// Fixed parameters of §4.5.
const (
	DefaultPort      = 25688
	DefaultSyncCount = 6

	Stall        = 10 * time.Second
	StaleHorizon = 600 * time.Second
	tickInterval = Stall / 2
)

// Gossiper drives one node's membership table: it owns the datagram
// endpoint, dispatches inbound packets, and runs the periodic tick that
// refreshes self-liveness and initiates SYNC exchanges (§4.5).
//
// Per §5, a single goroutine owns both the inbound receive path and the
// outbound tick, so the table never needs a mutex: Serve spawns exactly one
// loop goroutine that alternates between a bounded Poll and a tick check.
type Gossiper struct {
	table     *MembershipTable
	seeds     *SeedList
	endpoint  *netio.Endpoint
	syncCount int
	logger    *zap.Logger

	lastSync time.Time
	closing  chan chan error
	now      func() time.Time
}

// NewGossiper creates a Gossiper around self, seeded with seeds. self is
// typically produced by NewNodeRecord and, if reachable, marked with
// SetFull before this call.
func NewGossiper(self *NodeRecord, seeds *SeedList, logger *zap.Logger) *Gossiper {
	if seeds == nil {
		seeds = NewSeedList()
	}
	return &Gossiper{
		table:     NewMembershipTable(self, logger),
		seeds:     seeds,
		syncCount: DefaultSyncCount,
		logger:    logger,
		closing:   make(chan chan error),
		now:       time.Now,
	}
}

// Table exposes the underlying MembershipTable, e.g. for tests or metrics.
func (g *Gossiper) Table() *MembershipTable { return g.table }

// Nodes returns the current local view of cluster membership.
func (g *Gossiper) Nodes() []*NodeRecord { return g.table.Snapshot() }

// Serve binds the datagram endpoint (port 0 selects DefaultPort) and spawns
// the single cooperative loop goroutine (§5). A bind failure is fatal and
// returned to the caller wrapped in ErrBindFailed (§7).
func (g *Gossiper) Serve(bindIP string, port int) error {
	if port == 0 {
		port = DefaultPort
	}
	ep, err := netio.Open(bindIP, port, netio.RecvBufDefault)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBindFailed, err)
	}
	g.endpoint = ep

	g.logger.Info("gossiper serving",
		zap.String("bind", ep.LocalAddr().String()),
		zap.String("pubid", g.table.Self().PubID),
		zap.Int("seeds", g.seeds.Len()))

	go g.run()
	return nil
}

// Shutdown stops the loop goroutine and releases the datagram endpoint.
// Shutdown latency is bounded by one 100ms recv timeout (§5 Cancellation).
func (g *Gossiper) Shutdown() error {
	errch := make(chan error)
	g.closing <- errch
	return <-errch
}

// run is the single cooperative loop: poll for one inbound packet (bounded
// by the endpoint's 100ms read timeout), then check whether it's time for
// the next tick. Both halves mutate the same MembershipTable, and since
// they run on this one goroutine they never race (§5).
func (g *Gossiper) run() {
	for {
		select {
		case errch := <-g.closing:
			errch <- g.endpoint.Close()
			return
		default:
		}

		if err := g.endpoint.Poll(g.handlePacket); err != nil {
			g.logger.Warn("recv failed", zap.Error(err))
		}

		g.tick()
	}
}

// tick implements §4.5's per-round algorithm.
func (g *Gossiper) tick() {
	now := g.now()
	if now.Sub(g.lastSync) < tickInterval {
		return
	}

	self := g.table.Self()
	self.AliveTime = now.Unix()

	// Active-subset-only sweep, in addition to the single-peer check in
	// step 4 below (§9 design notes: documented supplement, not a silent
	// invention — see DESIGN.md). Records are never removed from the table,
	// only demoted out of the active subset, matching mark_stale's contract.
	if removed := g.table.EvictStale(now.Unix(), int64(StaleHorizon.Seconds())); len(removed) > 0 {
		g.logger.Info("swept stale peers from the active subset", zap.Strings("pubids", removed))
	}

	round := xid.New().String()
	logger := g.logger.With(zap.String("round", round))

	var target *NodeRecord
	failed := false

	peer, err := g.table.RandomActive()
	if err != nil {
		failed = true
	} else if now.Unix()-peer.AliveTime > int64(StaleHorizon.Seconds()) {
		g.table.MarkStale(peer.PubID)
		failed = true
		logger.Info("peer exceeded stale horizon, evicted from active subset",
			zap.String("pubid", peer.PubID))
	} else {
		target = peer
		g.sendSync(target, logger)
	}

	isSeedTarget := target != nil && g.seeds.Contains(target.Dial())
	if failed || target == nil || isSeedTarget {
		g.sendSeedSync(logger)
	}

	g.lastSync = now
}

// sendSync builds and sends a targeted SYNC (§4.3, §4.5 step 4).
func (g *Gossiper) sendSync(target *NodeRecord, logger *zap.Logger) {
	addr, err := net.ResolveUDPAddr("udp", target.Dial())
	if err != nil {
		logger.Warn("could not resolve peer address", zap.String("pubid", target.PubID), zap.Error(err))
		return
	}
	logger.Debug("sending targeted SYNC", zap.String("pubid", target.PubID), zap.String("addr", addr.String()))
	g.sendPacket(g.buildSync(target), addr)
}

// sendSeedSync sends an untargeted SYNC to a uniformly random seed (§4.5
// step 5). It is a no-op when no seeds are configured.
func (g *Gossiper) sendSeedSync(logger *zap.Logger) {
	seeds := g.seeds.All()
	if len(seeds) == 0 {
		return
	}
	seed := seeds[rand.Intn(len(seeds))]
	addr, err := net.ResolveUDPAddr("udp", seed)
	if err != nil {
		logger.Warn("could not resolve seed address", zap.String("seed", seed), zap.Error(err))
		return
	}
	logger.Debug("sending seed-fallback SYNC", zap.String("seed", seed))
	g.sendPacket(g.buildSync(nil), addr)
}
