package gossip

import "strings"

// SeedList holds the static bootstrap addresses used when the active subset
// yields no gossip target (§3, §4.5 step 5).
type SeedList struct {
	addrs []string
}

// NewSeedList builds an empty seed list.
func NewSeedList() *SeedList {
	return &SeedList{}
}

// Add appends a single "host:port" seed address.
func (s *SeedList) Add(addr string) {
	s.addrs = append(s.addrs, addr)
}

// AddCSV parses a comma-separated "host:port,host:port" string and appends
// each non-blank entry (scenario S2). The CLI does not use it: it adds its
// single seed argument with Add.
func (s *SeedList) AddCSV(csv string) {
	for _, tok := range strings.Split(csv, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			s.Add(tok)
		}
	}
}

// Len returns the number of configured seeds.
func (s *SeedList) Len() int { return len(s.addrs) }

// All returns the configured seed addresses in insertion order.
func (s *SeedList) All() []string {
	out := make([]string, len(s.addrs))
	copy(out, s.addrs)
	return out
}

// Contains reports whether addr textually matches a configured seed, the
// check the original gossip_node_is_seed performs by formatting "ip:port"
// and string-comparing against the seed list (see SPEC_FULL.md's
// SUPPLEMENTED FEATURES section).
func (s *SeedList) Contains(addr string) bool {
	for _, a := range s.addrs {
		if a == addr {
			return true
		}
	}
	return false
}
