package gossip

import "errors"

// Error kinds propagated by value rather than thrown, per §7.
var (
	// ErrBindFailed indicates the datagram endpoint could not be bound at
	// startup. Fatal: the caller should surface it and not retry.
	ErrBindFailed = errors.New("gossip: bind failed")

	// ErrMalformed indicates an inbound packet was rejected at parse or
	// validation time. The caller logs and drops the packet.
	ErrMalformed = errors.New("gossip: malformed packet")

	// ErrEmpty indicates a random selection was attempted on an active
	// subset with no entries. The caller falls back to seeds.
	ErrEmpty = errors.New("gossip: active subset is empty")

	// ErrStale indicates the selected peer's alive_time exceeded
	// STALE_HORIZON. The caller marks it stale and falls back to seeds.
	ErrStale = errors.New("gossip: peer is stale")

	// ErrSendFailed indicates a transient datagram send failure. The caller
	// logs it; no retry is attempted this tick.
	ErrSendFailed = errors.New("gossip: send failed")

	// ErrDuplicate indicates Insert was called for a pub_id already present.
	ErrDuplicate = errors.New("gossip: duplicate pub_id")
)
