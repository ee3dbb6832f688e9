package dashboard

import (
	"sort"
	"time"

	"diskqueue/internal/disks"
	"diskqueue/internal/window"
)

// Row is one disk's statistics over the selected interval.
type Row struct {
	ID    string
	Name  string
	Kind  disks.Kind
	Stats window.Stats
	OK    bool // false: no sample inside the interval

	// Detail columns, filled only when requested.
	P99         float64 // over the selected interval
	HasP99      bool
	LifetimeP99 float64 // since startup
	HasLifeP99  bool
	LifetimeMax float64
	HasMax      bool
}

// Report is everything one screen shows.
type Report struct {
	Now       time.Time
	Interval  time.Duration // selected lookback
	Available time.Duration // history actually retained, whole seconds
	Retention time.Duration // longest history a disk can hold
	HasData   bool          // false until the first sample lands
	Physical  []Row
	Virtual   []Row
	Retained  int // samples held per disk
	Ticks     uint64
	Warning   string // latest log line held back while drawing
}

// Capped reports whether the selected interval exceeds the retained history.
func (r *Report) Capped() bool {
	return r.HasData && r.Available < r.Interval
}

// Report computes the statistics of every disk over interval. With detail
// set it also fills the windowed p99 and the lifetime p99 and maximum.
func (m *Monitor) Report(now time.Time, interval time.Duration, detail bool) Report {
	rep := Report{
		Now:      now,
		Interval: interval,
		Ticks:    m.Ticks(),
	}

	first := m.physical[0].Window
	if oldest, ok := first.Oldest(); ok {
		rep.HasData = true
		rep.Available = now.Sub(oldest).Truncate(time.Second)
	}
	rep.Retained = first.Len()
	rep.Retention = first.Retention()

	rep.Physical = rows(m.physical, now, interval, detail)
	rep.Virtual = rows(m.virtual, now, interval, detail)
	return rep
}

func rows(entities []*Entity, now time.Time, interval time.Duration, detail bool) []Row {
	out := make([]Row, 0, len(entities))
	for _, e := range entities {
		s, ok := e.Window.Stats(now, interval)
		row := Row{ID: e.ID, Name: e.Name(), Kind: e.Kind, Stats: s, OK: ok}
		if detail {
			if q, ok := e.Window.Quantiles(now, interval, 0.99); ok {
				row.P99, row.HasP99 = q[0], true
			}
			row.LifetimeP99, row.HasLifeP99 = e.LifetimeQuantile(99)
			row.LifetimeMax, row.HasMax = e.LifetimeMax()
		}
		out = append(out, row)
	}
	sortRows(out)
	return out
}

// sortRows orders by busy fraction descending, then name. Disks without
// data go last.
func sortRows(rs []Row) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.OK != b.OK {
			return a.OK
		}
		if a.OK && a.Stats.Busy != b.Stats.Busy {
			return a.Stats.Busy > b.Stats.Busy
		}
		return a.Name < b.Name
	})
}
