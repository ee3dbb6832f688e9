package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"diskqueue/internal/dashboard"
	"diskqueue/internal/disks"
	"diskqueue/internal/window"
)

func scrape(t *testing.T, e *Exporter, path string) string {
	t.Helper()
	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestExporterUpdate(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewExporter()
	e.Update(dashboard.Report{
		Now:       now,
		Interval:  time.Hour,
		Available: 90 * time.Second,
		Retention: 24 * time.Hour,
		HasData:   true,
		Retained:  450,
		Ticks:     450,
		Physical: []dashboard.Row{
			{Name: "sda", Kind: disks.Physical, OK: true, Stats: window.Stats{Busy: 0.5, Behind: 0.25, AvgQueue: 1.5}},
			{Name: "sdb", Kind: disks.Physical, OK: true, Stats: window.Stats{Busy: 0.1}},
		},
		Virtual: []dashboard.Row{
			{Name: "vm01", Kind: disks.Virtual, OK: true, Stats: window.Stats{Busy: 1, Behind: 1}},
		},
	})

	body := scrape(t, e, "/metrics")
	for _, want := range []string{
		`diskqueue_busy_ratio{disk="sda",kind="physical"} 0.5`,
		`diskqueue_backlog_ratio{disk="sda",kind="physical"} 0.25`,
		`diskqueue_avg_queue{disk="sda"} 1.5`,
		`diskqueue_busy_ratio{disk="vm01",kind="virtual"} 1`,
		`diskqueue_window_seconds 90`,
		`diskqueue_retained_samples 450`,
		`diskqueue_retention_seconds 86400`,
		`diskqueue_samples_total 450`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
	if strings.Contains(body, `diskqueue_avg_queue{disk="vm01"}`) {
		t.Error("virtual disks have no average queue")
	}

	// sdb drops out of the window.
	e.Update(dashboard.Report{
		Now:       now.Add(5 * time.Second),
		Interval:  time.Minute,
		Available: 95 * time.Second,
		HasData:   true,
		Ticks:     475,
		Physical: []dashboard.Row{
			{Name: "sda", Kind: disks.Physical, OK: true, Stats: window.Stats{Busy: 0.75}},
			{Name: "sdb", Kind: disks.Physical},
		},
	})
	body = scrape(t, e, "/metrics")
	if strings.Contains(body, `disk="sdb"`) || strings.Contains(body, `disk="vm01"`) {
		t.Error("disks without data must be removed")
	}
	for _, want := range []string{
		`diskqueue_busy_ratio{disk="sda",kind="physical"} 0.75`,
		`diskqueue_window_seconds 60`,
		`diskqueue_samples_total 475`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestStaleVirtualKeepsPhysicalAvgQueue(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewExporter()
	rep := dashboard.Report{
		Now:       now,
		Interval:  time.Minute,
		Available: time.Hour,
		HasData:   true,
		Physical: []dashboard.Row{
			{Name: "xvda", Kind: disks.Physical, OK: true, Stats: window.Stats{Busy: 0.5, AvgQueue: 2}},
		},
		Virtual: []dashboard.Row{
			{Name: "xvda", Kind: disks.Virtual, OK: true, Stats: window.Stats{Busy: 1}},
		},
	}
	e.Update(rep)

	// Only the virtual disk loses its data.
	rep.Now = now.Add(5 * time.Second)
	rep.Virtual = []dashboard.Row{{Name: "xvda", Kind: disks.Virtual}}
	e.Update(rep)

	body := scrape(t, e, "/metrics")
	if !strings.Contains(body, `diskqueue_avg_queue{disk="xvda"} 2`) {
		t.Errorf("physical average queue must survive a stale virtual disk of the same name:\n%s", body)
	}
	if strings.Contains(body, `diskqueue_busy_ratio{disk="xvda",kind="virtual"}`) {
		t.Error("stale virtual series must be removed")
	}
	if !strings.Contains(body, `diskqueue_busy_ratio{disk="xvda",kind="physical"} 0.5`) {
		t.Error("physical busy ratio must remain")
	}
}

func TestHealth(t *testing.T) {
	e := NewExporter()
	body := scrape(t, e, "/health")
	if !strings.Contains(body, `"status":"healthy"`) {
		t.Fatalf("unexpected health body %s", body)
	}
	if strings.Contains(body, "last_update") {
		t.Fatal("no update yet")
	}
}
