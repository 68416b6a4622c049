package snapshot

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/hashtable"
	"github.com/cuemby/shardkv/pkg/types"
)

func TestProducerEmitsEveryLiveKeyAndAFullSyncCut(t *testing.T) {
	slice := dbslice.New(0)
	for i := 0; i < 50; i++ {
		key := string(rune('a' + i%26))
		slice.Set(0, key+string(rune('0'+i/26)), types.NewStringValue("v"))
	}

	dest := make(chan Record, 64)
	go func() {
		p := NewProducer(slice, dest)
		require.NoError(t, p.Run(nil))
		close(dest)
	}()

	seen := make(map[string]bool)
	sawCut := false
	for rec := range dest {
		if rec.Kind == RecordFullSyncCut {
			sawCut = true
			continue
		}
		assert.False(t, sawCut, "no KV record should follow the full-sync cut")
		seen[rec.Key] = true
	}
	assert.True(t, sawCut)
	assert.Equal(t, 50, len(seen))
}

func TestProducerHonorsCancellation(t *testing.T) {
	slice := dbslice.New(0)
	for i := 0; i < 1000; i++ {
		slice.Set(0, string(rune(i)), types.NewStringValue("v"))
	}

	dest := make(chan Record) // unbuffered: producer blocks on send
	cancel := make(chan struct{})
	close(cancel)

	p := NewProducer(slice, dest)
	err := p.Run(cancel)
	assert.ErrorIs(t, err, ErrCancelled)
}

// TestForwardWalkSkipsBucketSerializedOutOfTurn models spec.md §8's
// "snapshot under concurrent mutation" scenario: a key is overwritten
// after BeginSnapshot but before the forward walk reaches its bucket. The
// out-of-turn hook must capture it exactly once, with its pre-mutation
// value, and the forward walk must then skip that bucket rather than
// emit the post-mutation value a second time.
func TestForwardWalkSkipsBucketSerializedOutOfTurn(t *testing.T) {
	slice := dbslice.New(0)
	slice.Set(0, "a", types.NewStringValue("v-a"))
	slice.Set(0, "b", types.NewStringValue("v-b"))

	var outOfTurn []*hashtable.Entry
	version := slice.BeginSnapshot(0, func(bucketIndex int, entries []*hashtable.Entry) {
		outOfTurn = append(outOfTurn, entries...)
	})
	defer slice.EndSnapshot(0)

	slice.Set(0, "b", types.NewStringValue("v-b-mutated"))

	require.Len(t, outOfTurn, 1)
	assert.Equal(t, "b", outOfTurn[0].Key)
	assert.Equal(t, "v-b", outOfTurn[0].Value.Str, "out-of-turn hook must see the pre-mutation value")

	seen := make(map[string]string)
	var cursor dbslice.Cursor
	first := true
	for first || cursor != 0 {
		first = false
		cursor = slice.ScanVersioned(0, cursor, version, func(key string, value *types.PrimeValue) {
			seen[key] = value.Str
		})
	}

	assert.Equal(t, "v-a", seen["a"])
	_, stillEmitted := seen["b"]
	assert.False(t, stillEmitted, "b's bucket was already serialized out-of-turn; the forward walk must not emit it again")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, 0)
	require.NoError(t, err)

	records := []Record{
		{Kind: RecordKV, DBIndex: 0, Key: "a", Value: types.NewStringValue("1")},
		{Kind: RecordKV, DBIndex: 0, Key: "b", Value: types.NewStringValue("2")},
		{Kind: RecordFullSyncCut},
	}
	for _, r := range records {
		require.NoError(t, enc.Encode(r))
	}
	require.NoError(t, enc.Close())

	dec, err := NewDecoder(&buf)
	require.NoError(t, err)
	defer dec.Close()

	var got []Record
	for {
		r, err := dec.Decode()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, r)
	}

	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Key)
	assert.Equal(t, "1", got[0].Value.Str)
	assert.Equal(t, RecordFullSyncCut, got[2].Kind)
}
