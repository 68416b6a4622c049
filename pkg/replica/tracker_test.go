package replica

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/journal"
)

func appendN(j *journal.Journal, n int) {
	for i := 0; i < n; i++ {
		j.Append(journal.OpCommand, 0, 0, [][]byte{[]byte("SET"), []byte("k"), []byte("v")})
	}
}

func TestTrackerReportsLagForSlowReplica(t *testing.T) {
	j := journal.New(1000)
	appendN(j, 10)

	var acked atomic.Uint64
	acked.Store(3)

	tr := New(time.Second, nil)
	tr.Register("replica-a", 0, j, acked.Load)

	records, bytes, needsResync := tr.sampleOne("replica-a", 0, tr.replicas["replica-a"][0])
	assert.False(t, needsResync)
	assert.EqualValues(t, 7, records)
	assert.Positive(t, bytes)
}

func TestTrackerTriggersResyncWhenAckedLSNEvicted(t *testing.T) {
	j := journal.New(4)
	appendN(j, 20) // overflows the 4-entry ring, evicting LSNs 0-15

	acked := func() uint64 { return 0 }

	var resynced atomic.Bool
	var gotReplica string
	var gotShard uint32

	tr := New(20*time.Millisecond, func(replicaID string, shardID uint32) {
		resynced.Store(true)
		gotReplica = replicaID
		gotShard = shardID
	})
	tr.Register("replica-b", 2, j, acked)
	tr.Start()
	defer tr.Stop()

	require.Eventually(t, resynced.Load, time.Second, 10*time.Millisecond)
	assert.Equal(t, "replica-b", gotReplica)
	assert.Equal(t, uint32(2), gotShard)
}

func TestTrackerCaughtUpReplicaReportsNoLag(t *testing.T) {
	j := journal.New(100)
	appendN(j, 5)

	acked := func() uint64 { return j.LSN() }

	tr := New(20*time.Millisecond, nil)
	tr.Register("replica-c", 0, j, acked)
	tr.Start()
	defer tr.Stop()

	time.Sleep(50 * time.Millisecond)
	records, bytes, needsResync := tr.sampleOne("replica-c", 0, tr.replicas["replica-c"][0])
	assert.False(t, needsResync)
	assert.Zero(t, records)
	assert.Zero(t, bytes)
}

func TestUnregisterStopsTrackingShard(t *testing.T) {
	j := journal.New(100)
	tr := New(time.Second, nil)
	tr.Register("replica-d", 0, j, func() uint64 { return 0 })
	tr.Unregister("replica-d", 0)

	tr.mu.Lock()
	_, ok := tr.replicas["replica-d"]
	tr.mu.Unlock()
	assert.False(t, ok)
}
