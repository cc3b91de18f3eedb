package utils

import (
	"fmt"
	"hash/fnv"
)

// Fingerprint is a cheap change detector for encoded blobs, not a security hash.
func Fingerprint(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Tag renders the fingerprint of s as fixed-width hex, suitable for storing
// next to data without exposing s itself.
func Tag(s string) string {
	return fmt.Sprintf("%016x", Fingerprint([]byte(s)))
}
