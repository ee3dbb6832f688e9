// Package dashboard drives sampling of every disk, keeps the loop state and
// renders the busy/backlog tables.
package dashboard

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"diskqueue/internal/disks"
	"diskqueue/internal/window"
)

// Lifetime histogram of the primary reading, stored in hundredths of a request.
const (
	histScale  = 100
	histMin    = 1
	histMax    = 10_000_000
	histSigFig = 3
)

// Entity is one monitored disk.
type Entity struct {
	ID     string
	Kind   disks.Kind
	Window *window.Window

	mu       sync.Mutex
	lifetime *hdrhistogram.Histogram
	rejected bool // lifetime refused a reading; logged once
}

func newEntity(id string, kind disks.Kind, retention time.Duration, sizeHint int) *Entity {
	return &Entity{
		ID:       id,
		Kind:     kind,
		Window:   window.New(id, retention, sizeHint),
		lifetime: hdrhistogram.New(histMin, histMax, histSigFig),
	}
}

// Name returns the display name.
func (e *Entity) Name() string {
	return e.Window.Name()
}

func (e *Entity) ingest(t time.Time, r disks.Reading) {
	e.Window.Ingest(t, r.Primary, r.Secondary)

	v := int64(r.Primary*histScale + 0.5)
	if v > histMax {
		v = histMax
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.lifetime.RecordValue(v); err != nil && !e.rejected {
		log.Printf("Warning: %s: reading %v left out of lifetime stats: %v", e.ID, r.Primary, err)
		e.rejected = true
	}
}

// LifetimeMax returns the largest primary reading seen since startup.
func (e *Entity) LifetimeMax() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifetime.TotalCount() == 0 {
		return 0, false
	}
	return float64(e.lifetime.Max()) / histScale, true
}

// LifetimeQuantile returns the q-th percentile (0..100) of every primary
// reading seen since startup.
func (e *Entity) LifetimeQuantile(q float64) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifetime.TotalCount() == 0 {
		return 0, false
	}
	return float64(e.lifetime.ValueAtQuantile(q)) / histScale, true
}

// source ties a collector to the entities it feeds.
type source struct {
	kind      disks.Kind
	collector disks.Collector
	entities  map[string]*Entity
	lastErr   string
}

// Monitor owns the fixed set of entities and feeds them from the collectors.
type Monitor struct {
	physical []*Entity
	virtual  []*Entity
	sources  []*source
	ticks    atomic.Uint64
}

// NewMonitor builds one entity per disk in inv. virtual may be nil when inv
// has no virtual disks. It fails with disks.ErrNoDisks if inv lists no
// physical disk.
func NewMonitor(inv disks.Inventory, retention time.Duration, sizeHint int, physical, virtual disks.Collector) (*Monitor, error) {
	if len(inv.Physical) == 0 {
		return nil, disks.ErrNoDisks
	}
	if physical == nil {
		return nil, fmt.Errorf("no collector for physical disks")
	}

	m := &Monitor{}
	ps := &source{kind: disks.Physical, collector: physical, entities: make(map[string]*Entity)}
	for _, id := range inv.Physical {
		e := newEntity(id, disks.Physical, retention, sizeHint)
		m.physical = append(m.physical, e)
		ps.entities[id] = e
	}
	m.sources = append(m.sources, ps)

	if len(inv.Virtual) > 0 && virtual != nil {
		vs := &source{kind: disks.Virtual, collector: virtual, entities: make(map[string]*Entity)}
		for _, id := range inv.Virtual {
			e := newEntity(id, disks.Virtual, retention, sizeHint)
			m.virtual = append(m.virtual, e)
			vs.entities[id] = e
		}
		m.sources = append(m.sources, vs)
	}
	return m, nil
}

// Physical returns the physical disk entities in discovery order.
func (m *Monitor) Physical() []*Entity { return m.physical }

// Virtual returns the virtual disk entities in discovery order.
func (m *Monitor) Virtual() []*Entity { return m.virtual }

// Ticks returns how many times Sample has run.
func (m *Monitor) Ticks() uint64 { return m.ticks.Load() }

// Sample polls every collector once, in parallel, and ingests the readings
// stamped with now. A failing collector is logged once per distinct error
// and its missing disks simply get no sample this tick.
func (m *Monitor) Sample(ctx context.Context, now time.Time) {
	var wg sync.WaitGroup
	for _, src := range m.sources {
		wg.Add(1)
		go func(src *source) {
			defer wg.Done()
			readings, err := src.collector.Collect(ctx)
			if err != nil {
				if msg := err.Error(); msg != src.lastErr {
					log.Printf("Warning: sampling %s disks: %v", src.kind, err)
					src.lastErr = msg
				}
			} else {
				src.lastErr = ""
			}
			for id, r := range readings {
				if e, ok := src.entities[id]; ok {
					e.ingest(now, r)
				}
			}
		}(src)
	}
	wg.Wait()
	m.ticks.Add(1)
}
