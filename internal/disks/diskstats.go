package disks

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
)

// countersFunc matches disk.IOCountersWithContext.
type countersFunc func(ctx context.Context, names ...string) (map[string]disk.IOCountersStat, error)

type weighted struct {
	ms   uint64
	when time.Time
}

// DiskstatsCollector reads /proc/diskstats through gopsutil. Primary is the
// number of I/Os in progress; Secondary is the average queue length since
// the previous tick, the weighted I/O time delta divided by the elapsed wall
// time (both in milliseconds).
type DiskstatsCollector struct {
	names    []string
	counters countersFunc
	now      func() time.Time
	prev     map[string]weighted
}

// NewDiskstatsCollector builds a collector for the given devices.
func NewDiskstatsCollector(names []string) *DiskstatsCollector {
	return &DiskstatsCollector{
		names:    append([]string(nil), names...),
		counters: disk.IOCountersWithContext,
		now:      time.Now,
		prev:     make(map[string]weighted, len(names)),
	}
}

// Collect implements Collector. It is not safe for concurrent use.
func (c *DiskstatsCollector) Collect(ctx context.Context) (map[string]Reading, error) {
	stats, err := c.counters(ctx, c.names...)
	if err != nil {
		return nil, err
	}
	now := c.now()

	out := make(map[string]Reading, len(stats))
	for _, name := range c.names {
		st, ok := stats[name]
		if !ok {
			continue
		}
		r := Reading{Primary: float64(st.IopsInProgress)}
		if p, seen := c.prev[name]; seen && st.WeightedIO >= p.ms {
			if elapsed := now.Sub(p.when).Milliseconds(); elapsed > 0 {
				r.Secondary = float64(st.WeightedIO-p.ms) / float64(elapsed)
			}
		}
		c.prev[name] = weighted{ms: st.WeightedIO, when: now}
		out[name] = r
	}
	return out, nil
}
