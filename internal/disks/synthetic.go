package disks

import (
	"context"
	"fmt"
	"math/rand"
)

// Synthetic generates deterministic queue lengths for demo mode and tests.
// Every disk gets its own load level; disks at index i are busy roughly
// (i+1)/(n+1) of the time.
type Synthetic struct {
	names     []string
	load      map[string]float64
	secondary bool
	rng       *rand.Rand
	avg       map[string]float64
}

// NewSynthetic creates a generator for names. With secondary set, readings
// also carry a smoothed average queue length.
func NewSynthetic(names []string, secondary bool, seed int64) *Synthetic {
	s := &Synthetic{
		names:     append([]string(nil), names...),
		load:      make(map[string]float64, len(names)),
		secondary: secondary,
		rng:       rand.New(rand.NewSource(seed)),
		avg:       make(map[string]float64, len(names)),
	}
	for i, name := range s.names {
		s.load[name] = float64(i+1) / float64(len(names)+1)
	}
	return s
}

// SyntheticInventory returns made-up device names for demo mode.
func SyntheticInventory(physical, virtual int) Inventory {
	var inv Inventory
	for i := 0; i < physical; i++ {
		inv.Physical = append(inv.Physical, fmt.Sprintf("sd%c", 'a'+i%26))
	}
	for i := 0; i < virtual; i++ {
		inv.Virtual = append(inv.Virtual, fmt.Sprintf("C:-Virtual Hard Disks-vm%02d.vhdx", i+1))
	}
	return inv
}

// Collect implements Collector.
func (s *Synthetic) Collect(ctx context.Context) (map[string]Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]Reading, len(s.names))
	for _, name := range s.names {
		var q float64
		if s.rng.Float64() < s.load[name] {
			q = float64(1 + s.rng.Intn(4))
		}
		r := Reading{Primary: q}
		if s.secondary {
			s.avg[name] = 0.8*s.avg[name] + 0.2*q
			r.Secondary = s.avg[name]
		}
		out[name] = r
	}
	return out, nil
}
