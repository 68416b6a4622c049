// Package config loads the server's startup configuration: listener
// addresses, shard count, data directory, TLS material, and cluster
// membership. It follows the teacher's manager.Config/worker.Config
// shape (a plain struct filled from Default(); no per-option flags
// populate it) plus apply.go's YAML
// file-loading convention for the on-disk form.
package config
