package dashboard

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"diskqueue/internal/disks"
	"diskqueue/internal/window"
)

func render(t *testing.T, d *Display, rep Report) string {
	t.Helper()
	var out bytes.Buffer
	d.Out = &out
	if err := d.Render(rep); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return out.String()
}

func TestRenderTables(t *testing.T) {
	rep := Report{
		Now:       t0,
		Interval:  10 * time.Second,
		Available: time.Hour,
		HasData:   true,
		Retained:  12345,
		Physical: []Row{
			{Name: "sda", OK: true, Stats: window.Stats{Busy: 0.5, Behind: 0.25, AvgQueue: 1.234}},
			{Name: "sdb"},
		},
		Virtual: []Row{
			{Name: "vm01", OK: true, Stats: window.Stats{Busy: 1}},
		},
	}
	out := render(t, &Display{BatchMode: true}, rep)

	for _, want := range []string{
		"Disk usage over the last 10s\n",
		"      Busy    Behind    Avg. Queue      Physical Disk\n",
		"     50.0%     25.0%         1.234      sda\n",
		"         -         -             -      sdb\n",
		"      Busy    Behind      Virtual Disk\n",
		"    100.0%      0.0%      vm01\n",
		"Total samples per disk: 12,345\n",
		"Press 1-5 to select interval; any key to refresh screen.\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("batch mode must not emit escape sequences")
	}
}

func TestRenderCappedInterval(t *testing.T) {
	rep := Report{
		Now:       t0,
		Interval:  time.Hour,
		Available: 42 * time.Second,
		HasData:   true,
		Physical:  []Row{{Name: "sda"}},
	}
	out := render(t, &Display{BatchMode: true}, rep)
	want := "Disk usage over the last 42s (selected interval is 1h0m but not enough data)"
	if !strings.Contains(out, want) {
		t.Fatalf("expected %q in:\n%s", want, out)
	}
	if strings.Contains(out, "Virtual Disk") {
		t.Fatal("virtual table must be omitted when there are no virtual disks")
	}
}

func TestRenderWaitingForData(t *testing.T) {
	rep := Report{Now: t0, Interval: time.Minute, Physical: []Row{{Name: "sda"}}}
	out := render(t, &Display{BatchMode: true}, rep)
	if !strings.Contains(out, "Disk usage (waiting for first samples)") {
		t.Fatalf("unexpected header:\n%s", out)
	}
}

func TestRenderInteractive(t *testing.T) {
	rep := Report{
		Now:      t0,
		Interval: 10 * time.Second,
		HasData:  true,
		Physical: []Row{{
			Name: "sda", OK: true,
			P99: 3, HasP99: true,
			LifetimeP99: 5, HasLifeP99: true,
			LifetimeMax: 7, HasMax: true,
		}},
		Warning: "sdb: gone",
	}
	out := render(t, &Display{RawMode: true, Detail: true, Presets: 3}, rep)

	if !strings.HasPrefix(out, "\033[H\033[J") {
		t.Error("interactive frames must start by clearing the screen")
	}
	if strings.Contains(strings.ReplaceAll(out, "\r\n", ""), "\n") {
		t.Error("raw mode output must use CRLF line endings")
	}
	for _, want := range []string{
		"   P99 Q  Life P99   Max Q      Physical Disk",
		"     3.0       5.0     7.0      sda",
		"Last warning: sdb: gone\r\n",
		"Press 1-3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%q", want, out)
		}
	}
}

func TestLoopRendersAndQuits(t *testing.T) {
	phys := &fixedCollector{readings: map[string]disks.Reading{"sda": {Primary: 1, Secondary: 1}}}
	m := newTestMonitor(t, phys, nil)

	var out bytes.Buffer
	var reports []Report
	loop := &Loop{
		Monitor:     m,
		State:       NewState(presets, 1, time.Hour),
		Display:     &Display{Out: &out, BatchMode: true},
		SampleEvery: time.Millisecond,
		OnReport:    func(r Report) { reports = append(reports, r) },
	}

	keys := make(chan byte)
	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background(), keys) }()

	keys <- '4'
	keys <- 0x03

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not quit on Ctrl-C")
	}

	if len(reports) == 0 {
		t.Fatal("expected at least one report")
	}
	if last := reports[len(reports)-1]; last.Interval != time.Hour {
		t.Fatalf("expected the 1h preset after pressing 4, got %v", last.Interval)
	}
	if !strings.Contains(out.String(), "Physical Disk") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestRenderDetailWithoutLifetimeData(t *testing.T) {
	rep := Report{
		Now:      t0,
		Interval: 10 * time.Second,
		HasData:  true,
		Physical: []Row{{Name: "sda"}},
	}
	out := render(t, &Display{BatchMode: true, Detail: true}, rep)
	if !strings.Contains(out, "         -         -             -       -         -       -      sda\n") {
		t.Fatalf("expected dashes in every column:\n%s", out)
	}
	if strings.Contains(out, "Last warning") {
		t.Fatal("no warning line without a warning")
	}
}

func TestLoopShowsHeldBackWarning(t *testing.T) {
	sink := &LogSink{}
	prev := log.Writer()
	log.SetOutput(sink)
	t.Cleanup(func() { log.SetOutput(prev) })

	phys := &fixedCollector{
		readings: map[string]disks.Reading{"sda": {Primary: 1}},
		err:      errors.New("sdb: gone"),
	}
	var out bytes.Buffer
	var reports []Report
	loop := &Loop{
		Monitor:     newTestMonitor(t, phys, nil),
		State:       NewState(presets, 1, time.Hour),
		Display:     &Display{Out: &out, BatchMode: true},
		SampleEvery: time.Millisecond,
		OnReport:    func(r Report) { reports = append(reports, r) },
		Log:         sink,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := loop.Run(ctx, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(reports) == 0 {
		t.Fatal("expected a report")
	}
	if w := reports[0].Warning; !strings.HasSuffix(w, "Warning: sampling physical disks: sdb: gone") {
		t.Fatalf("unexpected warning %q", w)
	}
	if !strings.Contains(out.String(), "Last warning: ") {
		t.Fatalf("warning missing from frame:\n%s", out.String())
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	phys := &fixedCollector{readings: map[string]disks.Reading{"sda": {}}}
	loop := &Loop{
		Monitor:     newTestMonitor(t, phys, nil),
		State:       NewState(presets, 1, time.Hour),
		Display:     &Display{Out: &bytes.Buffer{}, BatchMode: true},
		SampleEvery: time.Millisecond,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := loop.Run(ctx, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	phys.mu.Lock()
	defer phys.mu.Unlock()
	if phys.calls == 0 {
		t.Fatal("expected the collector to be polled")
	}
}
