package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/raft"
	"github.com/spf13/cobra"

	"github.com/cuemby/shardkv/pkg/clusterconfig"
	"github.com/cuemby/shardkv/pkg/config"
	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/dispatch"
	"github.com/cuemby/shardkv/pkg/engine"
	"github.com/cuemby/shardkv/pkg/invalidation"
	"github.com/cuemby/shardkv/pkg/journal"
	"github.com/cuemby/shardkv/pkg/listener"
	"github.com/cuemby/shardkv/pkg/log"
	"github.com/cuemby/shardkv/pkg/maintenance"
	"github.com/cuemby/shardkv/pkg/metrics"
	"github.com/cuemby/shardkv/pkg/migrator"
	"github.com/cuemby/shardkv/pkg/replica"
	"github.com/cuemby/shardkv/pkg/security"
	"github.com/cuemby/shardkv/pkg/shardmap"
	"github.com/cuemby/shardkv/pkg/snapshot"
	"github.com/cuemby/shardkv/pkg/tiered"
	"github.com/cuemby/shardkv/pkg/txn"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "shardkv",
	Short:   "shardkv - sharded in-memory key-value store",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"shardkv version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	serverCmd.Flags().String("config", "", "Path to a YAML config file (defaults to a single-node config)")
	rootCmd.AddCommand(serverCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start a shardkv node",
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	n, err := newNode(cfg)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}
	defer n.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return n.Serve(ctx)
}

// node bundles every subsystem a running shardkv server owns, grounded
// on pkg/manager.Manager's role as the one struct cmd/warren's cluster
// subcommands build up and tear down together.
type node struct {
	cfg *config.Config

	shards    []*engine.Shard
	journals  []*journal.Journal
	tieredDB  []*tiered.Store
	mapper    *shardmap.Mapper
	coord     *txn.Coordinator
	cluster   clusterconfig.ClusterConfig
	migrate   *migrator.Migrator
	invalid   *invalidation.Broker
	lagTrack  *replica.Tracker
	maintLoop *maintenance.Loop
	exec      *dispatch.Executor
	mcAdapter *dispatch.MemcacheAdapter

	respListener     *listener.Listener
	memcacheListener *listener.Listener
	metricsServer    *http.Server
}

func newNode(cfg *config.Config) (*node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	n := &node{cfg: cfg}

	n.shards = make([]*engine.Shard, cfg.Shards)
	n.journals = make([]*journal.Journal, cfg.Shards)
	n.invalid = invalidation.NewBroker()
	n.maintLoop = maintenance.NewLoop()

	var clusterKey []byte
	if cfg.TieredSealed {
		clusterKey = security.DeriveKeyFromClusterID(cfg.ClusterID)
	}
	if cfg.TieredDir != "" {
		n.tieredDB = make([]*tiered.Store, cfg.Shards)
	}

	for i := 0; i < cfg.Shards; i++ {
		shard := engine.New(uint32(i), cfg.MaintenanceInterval)
		n.shards[i] = shard
		n.maintLoop.Attach(shard)

		j := journal.New(cfg.JournalCapacity)
		n.journals[i] = j

		if n.tieredDB != nil {
			store, err := tiered.New(cfg.TieredDir, uint32(i), clusterKey)
			if err != nil {
				return nil, fmt.Errorf("open tiered store for shard %d: %w", i, err)
			}
			n.tieredDB[i] = store
		}

		wireShardHooks(shard.Slice(), j, n.invalid)
	}

	n.mapper = shardmap.New(uint32(cfg.Shards))
	n.coord = txn.NewCoordinator(n.shards)

	registry := dispatch.NewRegistry()
	dispatch.RegisterAll(registry)
	n.exec = dispatch.NewExecutor(registry, n.mapper, n.coord)
	n.mcAdapter = dispatch.NewMemcacheAdapter(n.exec)

	self := clusterconfig.NodeInfo{ID: cfg.NodeID, Addr: cfg.RESPAddr}
	switch cfg.ClusterMode {
	case config.ClusterModeEnabled:
		peers := make([]raft.Server, 0, len(cfg.Peers))
		for _, p := range cfg.Peers {
			peers = append(peers, raft.Server{ID: raft.ServerID(p.NodeID), Address: raft.ServerAddress(p.Addr)})
		}
		raftCfg, err := clusterconfig.NewRaftConfig(clusterconfig.RaftOptions{
			NodeID:   cfg.NodeID,
			BindAddr: cfg.RESPAddr,
			DataDir:  cfg.DataDir,
		})
		if err != nil {
			return nil, fmt.Errorf("build raft cluster config: %w", err)
		}
		if err := raftCfg.Bootstrap(peers); err != nil {
			return nil, fmt.Errorf("bootstrap raft: %w", err)
		}
		n.cluster = raftCfg
	default:
		// "disabled" and "emulated" both run a single-node static config;
		// emulated exercises the same ClusterConfig API a real cluster
		// would, just without a Raft group backing it.
		n.cluster = clusterconfig.NewStatic(self)
	}

	n.migrate = migrator.New(n.cluster, cfg.NodeID, n.shards, time.Second)
	n.lagTrack = replica.New(cfg.ReplicaLagInterval, nil)

	n.respListener = listener.New(cfg.RESPAddr, listener.ProtocolRESP, listener.RoleMain, cfg.Shards,
		n.exec.HandlerFactory(), nil,
		listener.WithMaxClients(cfg.MaxClients),
		listener.WithByteCeiling(cfg.DispatchQueueCeiling),
		listener.WithPipelineCacheCeiling(cfg.PipelineCacheCeiling))
	n.memcacheListener = listener.New(cfg.MemcacheAddr, listener.ProtocolMemcache, listener.RoleMain, cfg.Shards,
		nil, n.mcAdapter.Handle)

	n.metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}

	return n, nil
}

// wireShardHooks connects one shard's mutation stream to its replication
// journal and the cluster-wide invalidation broker, the same "every write
// fans out to whoever is watching" shape pkg/manager.Manager's FSM apply
// hook uses to notify its own subscribers.
//
// Each journal entry carries a replayable command: DEL for a deletion, or
// RESTORE key + the JSON-encoded value otherwise (the same PrimeValue
// encoding pkg/snapshot's Encoder already uses on the wire), so a replica
// applying the journal in order reconstructs the exact post-mutation state
// rather than just the touched key.
func wireShardHooks(slice *dbslice.Slice, j *journal.Journal, broker *invalidation.Broker) {
	slice.RegisterOnChange(func(ev dbslice.ChangeEvent) {
		if ev.Deleted {
			j.Append(journal.OpCommand, ev.DBIndex, 0, [][]byte{[]byte("DEL"), []byte(ev.Key)})
		} else {
			payload, err := json.Marshal(ev.Value)
			if err != nil {
				log.Logger.Error().Err(err).Str("key", ev.Key).Msg("journal: encode value")
			} else {
				j.Append(journal.OpCommand, ev.DBIndex, 0, [][]byte{[]byte("RESTORE"), []byte(ev.Key), payload})
			}
		}
		broker.Publish(&invalidation.Event{Key: []byte(ev.Key), DBIndex: ev.DBIndex})
	})
}

// runSnapshots drives the periodic full-sync producer: every
// SnapshotInterval, it walks each shard's keyspace via pkg/snapshot and
// writes the result to SnapshotDir. A zero interval or empty directory
// disables scheduled snapshots entirely.
func (n *node) runSnapshots(ctx context.Context) {
	if n.cfg.SnapshotInterval <= 0 || n.cfg.SnapshotDir == "" {
		return
	}

	ticker := time.NewTicker(n.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, shard := range n.shards {
				if err := snapshotShard(shard, n.cfg.SnapshotDir, n.cfg.SnapshotFilenameTemplate, now); err != nil {
					log.Logger.Error().Err(err).Uint32("shard", shard.ID()).Msg("snapshot failed")
				}
			}
		}
	}
}

// snapshotShard drives one shard's Producer to completion and streams its
// output to a fresh file under dir, named by filenameTemplate.
func snapshotShard(shard *engine.Shard, dir, filenameTemplate string, ts time.Time) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, snapshotFilename(filenameTemplate, shard.ID(), ts))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()

	enc, err := snapshot.NewEncoder(f, 0)
	if err != nil {
		return fmt.Errorf("build snapshot encoder: %w", err)
	}

	dest := make(chan snapshot.Record, 256)
	encDone := make(chan error, 1)
	go func() {
		for rec := range dest {
			if err := enc.Encode(rec); err != nil {
				encDone <- err
				for range dest {
					// drain so Producer.Run, still running inline on the
					// shard's own goroutine, never blocks on a full send
				}
				return
			}
		}
		encDone <- enc.Close()
	}()

	var runErr error
	shard.RunInline(func(slice *dbslice.Slice) {
		runErr = snapshot.NewProducer(slice, dest).Run(nil)
	})
	close(dest)

	if err := <-encDone; err != nil {
		return err
	}
	return runErr
}

// snapshotFilename substitutes "{shard}" and "{ts}" in template with
// shardID and ts's unix seconds.
func snapshotFilename(template string, shardID uint32, ts time.Time) string {
	name := strings.ReplaceAll(template, "{shard}", strconv.Itoa(int(shardID)))
	return strings.ReplaceAll(name, "{ts}", strconv.FormatInt(ts.Unix(), 10))
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	return mux
}

// Serve starts every listener and background loop, blocking until ctx is
// cancelled or a listener exits, then shuts the metrics server down. The
// listeners stop when ctx is cancelled; shards and background loops are
// stopped by Close.
func (n *node) Serve(ctx context.Context) error {
	for _, shard := range n.shards {
		shard.Start()
	}
	n.invalid.Start()
	n.migrate.Start()
	n.lagTrack.Start()

	errCh := make(chan error, 3)
	go func() { errCh <- n.respListener.Serve(ctx) }()
	go func() { errCh <- n.memcacheListener.Serve(ctx) }()
	go func() {
		if err := n.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go n.runSnapshots(ctx)

	metrics.SetVersion(Version)
	metrics.RegisterComponent("listener", true, "serving")
	metrics.RegisterComponent("engine", true, "serving")
	metrics.RegisterComponent("journal", true, "serving")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Logger.Error().Err(err).Msg("listener exited")
		}
	}

	_ = n.metricsServer.Shutdown(context.Background())
	return nil
}

// Close stops every background loop and shard goroutine, in case Serve
// never ran (e.g. construction succeeded but Serve was never called).
func (n *node) Close() {
	n.migrate.Stop()
	n.lagTrack.Stop()
	n.invalid.Stop()
	for _, shard := range n.shards {
		shard.Stop()
	}
	for _, store := range n.tieredDB {
		if store != nil {
			_ = store.Close()
		}
	}
}
