package assign

import (
	"crypto/sha256"
	"encoding/binary"
)

// Bucket maps an (experiment, user) pair to a stable integer in [0,100).
//
// The value is derived from a SHA-256 digest of "experimentID:userID": the
// first 8 bytes interpreted as a big-endian unsigned integer, reduced modulo
// 100. It is a pure function of its inputs, so the bucket for a user is
// computable before any row exists and survives restarts and retries. A
// cryptographic hash keeps the bucket distribution uniform and the boundary
// placement infeasible to game via crafted user identifiers.
func Bucket(experimentID, userID string) int {
	sum := sha256.Sum256([]byte(experimentID + ":" + userID))
	return int(binary.BigEndian.Uint64(sum[:8]) % 100)
}

// VariantForBucket walks variants in their stored creation order,
// accumulating traffic allocations, and returns the index of the variant
// whose cumulative range contains bucket. The second return is false when
// the bucket falls beyond the cumulative total, which happens exactly when
// allocations sum to less than 100: that traffic is deliberately unassigned.
func VariantForBucket(allocations []float64, bucket int) (int, bool) {
	cumulative := 0.0
	for i, allocation := range allocations {
		cumulative += allocation
		if float64(bucket) < cumulative {
			return i, true
		}
	}
	return 0, false
}
