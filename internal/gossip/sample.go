package gossip

import "math/rand"

// sampleDigests picks a uniformly random subset of size min(len(pool), want)
// from pool using the reservoir-like algorithm of §4.3: for each candidate,
// include it iff randIntn(remaining) < (want - picked), decrementing both
// counters on inclusion. This is the Go analogue of the teacher's
// randIndexes helper (pkg/rand.go), generalized to without-replacement
// sampling over the records actually remaining rather than index reuse.
func sampleDigests(pool []*NodeRecord, want int) []*NodeRecord {
	if want <= 0 || len(pool) == 0 {
		return nil
	}

	picked := 0
	left := len(pool)
	out := make([]*NodeRecord, 0, min(want, len(pool)))

	for _, rec := range pool {
		if picked >= want {
			break
		}
		if rand.Intn(left) < want-picked {
			out = append(out, rec)
			picked++
		}
		left--
	}
	return out
}
