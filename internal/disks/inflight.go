package disks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// InflightReader holds an open sysfs inflight file for fast repeated reads.
type InflightReader struct {
	file *os.File
	buf  []byte
}

// NewInflightReader opens <sysfsRoot>/block/<device>/inflight.
func NewInflightReader(sysfsRoot, device string) (*InflightReader, error) {
	f, err := os.Open(filepath.Join(sysfsRoot, "block", device, "inflight"))
	if err != nil {
		return nil, err
	}
	return &InflightReader{
		file: f,
		buf:  make([]byte, 64), // "       0        0\n"
	}, nil
}

// Read seeks to the start and returns reads + writes currently in flight.
func (ir *InflightReader) Read() (int, error) {
	if _, err := ir.file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := ir.file.Read(ir.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	return parseInflight(ir.buf[:n])
}

// Close closes the file handle.
func (ir *InflightReader) Close() error {
	return ir.file.Close()
}

// parseInflight parses the "read write\n" format of the inflight file.
func parseInflight(data []byte) (int, error) {
	parts := strings.Fields(string(data))
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid inflight format %q", data)
	}
	read, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	write, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	return read + write, nil
}

// InflightCollector samples devices that only expose an instantaneous queue
// length. Secondary is always 0.
type InflightCollector struct {
	readers map[string]*InflightReader
}

// NewInflightCollector opens a reader per device. Devices whose inflight
// file cannot be opened are skipped with a warning.
func NewInflightCollector(sysfsRoot string, devices []string) *InflightCollector {
	c := &InflightCollector{readers: make(map[string]*InflightReader, len(devices))}
	for _, dev := range devices {
		r, err := NewInflightReader(sysfsRoot, dev)
		if err != nil {
			log.Printf("Warning: cannot open inflight file for %s: %v", dev, err)
			continue
		}
		c.readers[dev] = r
	}
	return c
}

// Collect implements Collector.
func (c *InflightCollector) Collect(ctx context.Context) (map[string]Reading, error) {
	out := make(map[string]Reading, len(c.readers))
	var errs []error
	for dev, r := range c.readers {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		n, err := r.Read()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dev, err))
			continue
		}
		out[dev] = Reading{Primary: float64(n)}
	}
	return out, errors.Join(errs...)
}

// Close closes every reader.
func (c *InflightCollector) Close() error {
	var errs []error
	for _, r := range c.readers {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
