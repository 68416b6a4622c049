package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full startup configuration for one shardkv node, grounded
// on pkg/manager.Config and pkg/worker.Config's flat-struct shape.
type Config struct {
	NodeID  string `yaml:"nodeId"`
	DataDir string `yaml:"dataDir"`

	Shards int `yaml:"shards"`

	RESPAddr     string `yaml:"respAddr"`
	MemcacheAddr string `yaml:"memcacheAddr"`
	AdminAddr    string `yaml:"adminAddr"`
	MetricsAddr  string `yaml:"metricsAddr"`

	MaintenanceInterval time.Duration `yaml:"maintenanceInterval"`
	ReplicaLagInterval  time.Duration `yaml:"replicaLagInterval"`
	JournalCapacity     int           `yaml:"journalCapacity"`

	// MaxClients caps the total number of connections a RESP listener
	// accepts across every shard combined, 0 meaning unbounded.
	MaxClients int `yaml:"maxClients"`
	// PipelineCacheCeiling bounds, in bytes, how much a proactor thread's
	// conn.MessagePool freelist may retain across dispatch bursts.
	PipelineCacheCeiling int64 `yaml:"pipelineCacheCeiling"`
	// DispatchQueueCeiling bounds, in bytes, one connection's queued-but-
	// not-yet-dispatched pipeline (conn.Conn.SetByteCeiling), 0 keeping
	// conn's built-in default.
	DispatchQueueCeiling int64 `yaml:"dispatchQueueCeiling"`

	// SnapshotInterval is the tick period of the periodic full-sync
	// producer (pkg/snapshot), 0 disabling scheduled snapshots entirely.
	// The examples carry no cron-expression parser, so this is a plain
	// ticker interval rather than a cron string; see DESIGN.md.
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	// SnapshotDir is the directory scheduled snapshot files are written
	// to, created if missing each time a snapshot is written.
	SnapshotDir string `yaml:"snapshotDir"`
	// SnapshotFilenameTemplate names each snapshot file. "{shard}" and
	// "{ts}" are substituted with the shard index and the unix timestamp
	// of the tick that produced it.
	SnapshotFilenameTemplate string `yaml:"snapshotFilenameTemplate"`

	// ClusterMode selects how this node's clusterconfig.ClusterConfig is
	// built: "disabled" or "emulated" both run a single-node
	// clusterconfig.StaticConfig (emulated exercises the same slot-owner
	// API a real cluster would, just locally), "enabled" builds and
	// bootstraps a clusterconfig.RaftConfig across Peers.
	ClusterMode string `yaml:"clusterMode"`

	// ClusterID seeds security.DeriveKeyFromClusterID for pkg/tiered's
	// sealed-store key (when TieredSealed is set), so every node in a
	// cluster derives the same key from the same string.
	ClusterID string `yaml:"clusterId"`

	// TieredDir, if non-empty, enables offloaded value storage on each
	// shard (pkg/tiered). Empty disables tiering entirely.
	TieredDir string `yaml:"tieredDir"`
	// TieredSealed requires TieredDir; when true, tiered payloads are
	// sealed with the cluster key rather than written in the clear.
	TieredSealed bool `yaml:"tieredSealed"`

	// TLS names the cert/key/CA files for mutual TLS. Validate checks that
	// all three are set when it is non-nil; cmd/shardkv does not load it,
	// so no listener serves TLS.
	TLS *TLSConfig `yaml:"tls,omitempty"`

	// Peers lists the Raft voting members of a multi-node deployment. It is
	// only used when ClusterMode is "enabled" (which requires at least one
	// entry); the other modes ignore it and run clusterconfig.StaticConfig.
	Peers []PeerConfig `yaml:"peers,omitempty"`
}

// TLSConfig names the cert/key/CA files security.LoadServerTLSConfig and
// security.LoadClientTLSConfig need.
type TLSConfig struct {
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
	CAFile   string `yaml:"caFile"`
}

// PeerConfig identifies one Raft voting member.
type PeerConfig struct {
	NodeID string `yaml:"nodeId"`
	Addr   string `yaml:"addr"`
}

// ClusterMode values, mirroring spec.md §6's tri-state.
const (
	ClusterModeDisabled = "disabled"
	ClusterModeEmulated = "emulated"
	ClusterModeEnabled  = "enabled"
)

// Default returns a single-node configuration suitable for local
// development: four shards, loopback listeners, no TLS, no tiering.
func Default() *Config {
	return &Config{
		NodeID:                   "node-1",
		DataDir:                  "./data",
		Shards:                   4,
		RESPAddr:                 "127.0.0.1:6380",
		MemcacheAddr:             "127.0.0.1:11211",
		AdminAddr:                "127.0.0.1:6381",
		MetricsAddr:              "127.0.0.1:9090",
		MaintenanceInterval:      100 * time.Millisecond,
		ReplicaLagInterval:       time.Second,
		JournalCapacity:          65536,
		MaxClients:               10000,
		PipelineCacheCeiling:     64 * 1024 * 1024,
		DispatchQueueCeiling:     0,
		SnapshotInterval:         10 * time.Minute,
		SnapshotDir:              "./data/snapshots",
		SnapshotFilenameTemplate: "dump-{shard}-{ts}.snapshot",
		ClusterMode:              ClusterModeDisabled,
		ClusterID:                "default-cluster",
	}
}

// Load reads and parses a YAML configuration file, matching apply.go's
// ReadFile-then-yaml.Unmarshal shape. Fields absent from the file keep
// Default's values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects a configuration that would leave the server unable to
// start (mismatched tiering flags, non-positive shard count).
func (c *Config) Validate() error {
	if c.Shards <= 0 {
		return fmt.Errorf("config: shards must be positive, got %d", c.Shards)
	}
	if c.TieredSealed && c.TieredDir == "" {
		return fmt.Errorf("config: tieredSealed requires tieredDir")
	}
	if c.TLS != nil {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" || c.TLS.CAFile == "" {
			return fmt.Errorf("config: tls requires certFile, keyFile, and caFile")
		}
	}
	switch c.ClusterMode {
	case "", ClusterModeDisabled, ClusterModeEmulated, ClusterModeEnabled:
	default:
		return fmt.Errorf("config: clusterMode must be disabled, emulated, or enabled, got %q", c.ClusterMode)
	}
	if c.ClusterMode == ClusterModeEnabled && len(c.Peers) == 0 {
		return fmt.Errorf("config: clusterMode enabled requires peers")
	}
	return nil
}
