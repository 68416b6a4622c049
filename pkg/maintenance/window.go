package maintenance

import "github.com/cuemby/shardkv/pkg/types"

// windowSize caps how many maintenance ticks of history statsWindow
// retains. At the default 100ms maintenance interval this is six seconds
// of rolling history, enough for an INFO-style reporter to show a trend
// without unbounded growth.
const windowSize = 60

// StatsSample is one tick's snapshot of a logical database's key
// counters.
type StatsSample struct {
	Keys        int64
	Expires     int64
	ExpiredHits int64
}

// statsWindow is a fixed-size ring buffer of recent StatsSample values
// for one shard's logical database, rotated once per maintenance tick.
type statsWindow struct {
	samples []StatsSample
	next    int
	filled  bool
}

func newStatsWindow() *statsWindow {
	return &statsWindow{samples: make([]StatsSample, windowSize)}
}

// rotate records s as the newest sample, evicting the oldest once the
// window has filled.
func (w *statsWindow) rotate(s StatsSample) {
	w.samples[w.next] = s
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.filled = true
	}
}

// ordered returns the retained samples oldest-first.
func (w *statsWindow) ordered() []StatsSample {
	if !w.filled {
		out := make([]StatsSample, w.next)
		copy(out, w.samples[:w.next])
		return out
	}
	out := make([]StatsSample, len(w.samples))
	copy(out, w.samples[w.next:])
	copy(out[len(w.samples)-w.next:], w.samples[:w.next])
	return out
}

func sampleFrom(stats types.DbStats) StatsSample {
	return StatsSample{Keys: stats.Keys, Expires: stats.Expires, ExpiredHits: stats.ExpiredHits}
}
