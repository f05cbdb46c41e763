// Package idhash derives the stable cluster-wide identifier of a node from
// its human-chosen public key.
package idhash

import (
	"crypto/sha1"
	"fmt"
)

// PubID returns the 40-character uppercase hex SHA-1 digest of pubKey,
// hashing the exact byte sequence pubKey||0x00 as the original
// implementation does. The result is stable for the life of the key and is
// used as the primary key for a node record across the cluster.
func PubID(pubKey string) string {
	h := sha1.New()
	h.Write([]byte(pubKey))
	h.Write([]byte{0})
	sum := h.Sum(nil)
	return fmt.Sprintf("%X", sum)
}
