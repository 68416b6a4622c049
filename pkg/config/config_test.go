package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsNonPositiveShards(t *testing.T) {
	cfg := Default()
	cfg.Shards = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSealedTieringWithoutDir(t *testing.T) {
	cfg := Default()
	cfg.TieredSealed = true
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsIncompleteTLS(t *testing.T) {
	cfg := Default()
	cfg.TLS = &TLSConfig{CertFile: "cert.pem"}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownClusterMode(t *testing.T) {
	cfg := Default()
	cfg.ClusterMode = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEnabledClusterModeWithoutPeers(t *testing.T) {
	cfg := Default()
	cfg.ClusterMode = ClusterModeEnabled
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsEnabledClusterModeWithPeers(t *testing.T) {
	cfg := Default()
	cfg.ClusterMode = ClusterModeEnabled
	cfg.Peers = []PeerConfig{{NodeID: "node-2", Addr: "127.0.0.1:6382"}}
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shardkv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodeId: node-7\nshards: 16\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node-7", cfg.NodeID)
	assert.Equal(t, 16, cfg.Shards)
	assert.Equal(t, Default().RESPAddr, cfg.RESPAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
