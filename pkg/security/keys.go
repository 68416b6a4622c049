package security

import "crypto/sha256"

// DeriveKeyFromClusterID derives a 32-byte AES-256 key from a cluster ID,
// so every shard in the same cluster seals tiered payloads under the same
// key without a separate key-distribution step.
func DeriveKeyFromClusterID(clusterID string) []byte {
	sum := sha256.Sum256([]byte(clusterID))
	return sum[:]
}
