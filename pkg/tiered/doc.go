// Package tiered implements the offloaded value store SPEC_FULL.md
// §4.20 calls for: a per-shard append-only file that large, cold
// PrimeValue payloads are moved to, leaving only a types.TieredRef
// (FileID, Offset, Length) resident in the hash table. It adapts the
// teacher's pkg/security secrets.go AES-256-GCM sealing
// (EncryptSecret/DecryptSecret's nonce-prepended envelope) from sealing
// named secrets to sealing arbitrary offloaded payloads, keyed by a
// cluster-wide key from security.DeriveKeyFromClusterID so every shard
// in a cluster can decrypt any other shard's tiered file.
package tiered
