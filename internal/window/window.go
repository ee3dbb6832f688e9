// Package window keeps a bounded, time-ordered history of queue-length samples
// for one disk and answers busy/backlog statistics over a lookback window.
package window

import (
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/mapping"
	"github.com/DataDog/sketches-go/ddsketch/store"
)

// DefaultRetention is the maximum age of a retained sample.
const DefaultRetention = 24 * time.Hour

// sketchAlpha is the relative accuracy of windowed quantiles (1%).
const sketchAlpha = 0.01

// Sample is one timestamped reading pair for a disk.
type Sample struct {
	Time      time.Time
	Primary   float64 // instantaneous queue length
	Secondary float64 // averaged queue length, 0 when there is no such source
}

// Stats are aggregates over the samples selected by a lookback window.
type Stats struct {
	Busy     float64 // fraction of samples with Primary >= 1
	Behind   float64 // fraction of samples with Primary > 1
	AvgQueue float64 // mean of Secondary
	Samples  int
}

// Window is the rolling history of one disk. Ingest takes the write lock,
// every query takes the read lock, so a Window may be shared between a
// sampler goroutine and a display goroutine.
type Window struct {
	mu        sync.RWMutex
	name      string
	retention time.Duration
	buf       []Sample
	head      int // buf[head:] is the live history
}

// New creates a window for the raw instance identifier id. sizeHint is the
// expected number of retained samples (retention / sampling period); it only
// pre-sizes storage and may be zero.
func New(id string, retention time.Duration, sizeHint int) *Window {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Window{
		name:      DisplayName(id),
		retention: retention,
		buf:       make([]Sample, 0, sizeHint),
	}
}

// Name returns the display name derived from the instance identifier.
func (w *Window) Name() string {
	return w.name
}

// Retention returns the window's retention horizon.
func (w *Window) Retention() time.Duration {
	return w.retention
}

// Ingest appends a sample taken at t and evicts everything older than
// t - retention.
func (w *Window) Ingest(t time.Time, primary, secondary float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, Sample{Time: t, Primary: primary, Secondary: secondary})

	cutoff := t.Add(-w.retention)
	for w.head < len(w.buf) && w.buf[w.head].Time.Before(cutoff) {
		w.head++
	}
	w.compact()
}

// compact drops the evicted prefix once it outweighs the live history.
func (w *Window) compact() {
	if w.head == 0 || w.head < len(w.buf)-w.head {
		return
	}
	n := copy(w.buf, w.buf[w.head:])
	clear(w.buf[n:])
	w.buf = w.buf[:n]
	w.head = 0
}

// Len returns the number of retained samples.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.buf) - w.head
}

// Oldest returns the timestamp of the oldest retained sample. ok is false
// when nothing has been ingested yet.
func (w *Window) Oldest() (t time.Time, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.head == len(w.buf) {
		return time.Time{}, false
	}
	return w.buf[w.head].Time, true
}

// each calls fn for every live sample taken at or after now - lookback.
// Callers must hold the read lock.
func (w *Window) each(now time.Time, lookback time.Duration, fn func(Sample)) {
	if lookback <= 0 {
		return
	}
	cutoff := now.Add(-lookback)
	for _, pt := range w.buf[w.head:] {
		if !pt.Time.Before(cutoff) {
			fn(pt)
		}
	}
}

// Stats aggregates the samples taken within lookback of now. ok is false
// when no sample falls inside the window; the returned Stats are then zero
// and must be shown as "no data".
func (w *Window) Stats(now time.Time, lookback time.Duration) (s Stats, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var total, busy, behind int
	var queue float64
	w.each(now, lookback, func(pt Sample) {
		total++
		queue += pt.Secondary
		if pt.Primary >= 1 {
			busy++
		}
		if pt.Primary > 1 {
			behind++
		}
	})
	if total == 0 {
		return Stats{}, false
	}

	n := float64(total)
	return Stats{
		Busy:     float64(busy) / n,
		Behind:   float64(behind) / n,
		AvgQueue: queue / n,
		Samples:  total,
	}, true
}

// Quantiles returns the requested quantiles (0..1) of the primary reading
// over the samples taken within lookback of now.
func (w *Window) Quantiles(now time.Time, lookback time.Duration, qs ...float64) ([]float64, bool) {
	m, err := mapping.NewLogarithmicMapping(sketchAlpha)
	if err != nil {
		return nil, false
	}
	sk := ddsketch.NewDDSketch(m, store.NewDenseStore(), store.NewDenseStore())

	w.mu.RLock()
	w.each(now, lookback, func(pt Sample) {
		if err := sk.Add(pt.Primary); err != nil {
			return // outside the sketch's indexable range
		}
	})
	w.mu.RUnlock()

	if sk.GetCount() == 0 {
		return nil, false
	}
	vals, err := sk.GetValuesAtQuantiles(qs)
	if err != nil {
		return nil, false
	}
	return vals, true
}
