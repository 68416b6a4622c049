package engine

import (
	"container/heap"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/types"
)

func TestSubmitRunsHopAndSignalsDone(t *testing.T) {
	s := New(0, 0)
	s.Start()
	defer s.Stop()

	done := s.Submit(&Hop{TxID: 1, Run: func(slice *dbslice.Slice) {
		slice.Set(0, "a", types.NewStringValue("1"))
	}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hop never completed")
	}

	v, ok := s.Slice().Find(0, "a")
	require.True(t, ok)
	assert.Equal(t, "1", v.Str)
}

func TestHopsExecuteInTxIdOrder(t *testing.T) {
	// Hops are pushed directly onto the shard's heap (bypassing the inbox
	// channel) before the event loop starts, so the ordering guarantee
	// under test — strict TxId order — isn't entangled with however the
	// scheduler happens to interleave three channel sends.
	s := New(0, 0)

	var order []int
	var dones []<-chan struct{}
	for _, id := range []types.TxId{3, 1, 2} {
		id := id
		done := make(chan struct{})
		h := &Hop{TxID: id, Run: func(slice *dbslice.Slice) {
			order = append(order, int(id))
		}, done: done}
		heap.Push(&s.queue, h)
		dones = append(dones, done)
	}

	s.Start()
	defer s.Stop()

	for _, d := range dones {
		<-d
	}
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestMaintenanceTickRuns(t *testing.T) {
	s := New(0, 10*time.Millisecond)
	ticked := make(chan struct{}, 1)
	s.OnMaintenance(func(slice *dbslice.Slice) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	})
	s.Start()
	defer s.Stop()

	select {
	case <-ticked:
	case <-time.After(time.Second):
		t.Fatal("maintenance never ticked")
	}
}

func TestRunInline(t *testing.T) {
	s := New(0, 0)
	s.Start()
	defer s.Stop()

	s.RunInline(func(slice *dbslice.Slice) {
		slice.Set(0, "a", types.NewStringValue("inline"))
	})
	v, ok := s.Slice().Find(0, "a")
	require.True(t, ok)
	assert.Equal(t, "inline", v.Str)
}
