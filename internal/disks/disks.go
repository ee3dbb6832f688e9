// Package disks discovers the block devices of a Linux host and reads their
// queue lengths once per tick.
package disks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultSysfs is where sysfs is mounted on a normal host.
const DefaultSysfs = "/sys"

// totalInstance is the aggregate pseudo-disk some metric sources report.
const totalInstance = "_Total"

// ErrNoDisks is returned when discovery finds no physical disk to monitor.
var ErrNoDisks = errors.New("no physical disks found")

// Kind tells physical disks from virtual block devices.
type Kind int

const (
	Physical Kind = iota
	Virtual
)

func (k Kind) String() string {
	if k == Virtual {
		return "virtual"
	}
	return "physical"
}

// Reading is one tick of queue-length data for a disk.
type Reading struct {
	Primary   float64 // requests in flight right now
	Secondary float64 // average queue length since the previous tick, 0 if unknown
}

// Collector polls every disk it was built for. Disks that could not be read
// are missing from the result; err reports why.
type Collector interface {
	Collect(ctx context.Context) (map[string]Reading, error)
}

// Inventory is the fixed set of disks found at startup.
type Inventory struct {
	Physical []string
	Virtual  []string
}

// Discover lists the disks under sysfsRoot. Block devices that resolve into
// devices/virtual are reported as virtual; an unreadable virtual tree just
// yields no virtual disks. It fails with ErrNoDisks when no physical disk
// exists.
func Discover(sysfsRoot string) (Inventory, error) {
	var inv Inventory

	blockDir := filepath.Join(sysfsRoot, "block")
	entries, err := os.ReadDir(blockDir)
	if err != nil {
		return inv, fmt.Errorf("%w: %w", ErrNoDisks, err)
	}
	for _, e := range entries {
		name := e.Name()
		if name == totalInstance {
			continue
		}
		resolved, err := filepath.EvalSymlinks(filepath.Join(blockDir, name))
		if err != nil {
			continue
		}
		if strings.Contains(filepath.ToSlash(resolved), "/devices/virtual/") {
			continue
		}
		if deviceSectors(sysfsRoot, name) == 0 {
			continue
		}
		inv.Physical = append(inv.Physical, name)
	}
	if len(inv.Physical) == 0 {
		return inv, ErrNoDisks
	}

	virtualDir := filepath.Join(sysfsRoot, "devices", "virtual", "block")
	entries, err = os.ReadDir(virtualDir)
	if err != nil {
		log.Printf("No virtual block devices (%v)", err)
		entries = nil
	}
	for _, e := range entries {
		if deviceSectors(sysfsRoot, e.Name()) == 0 {
			continue
		}
		inv.Virtual = append(inv.Virtual, e.Name())
	}

	sort.Strings(inv.Physical)
	sort.Strings(inv.Virtual)
	return inv, nil
}

// deviceSectors returns the size of a device in 512-byte sectors, or -1 if
// it cannot be read. Unused loop and nbd devices report 0.
func deviceSectors(sysfsRoot, device string) int64 {
	data, err := os.ReadFile(filepath.Join(sysfsRoot, "block", device, "size"))
	if err != nil {
		return -1
	}
	sectors, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return -1
	}
	return sectors
}
