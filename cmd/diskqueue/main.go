// diskqueue: live per-disk queue-length dashboard
//
// Samples every disk's in-flight request count (and, for physical disks, the
// average queue length from /proc/diskstats) several times a second, keeps
// 24 hours of history per disk and shows how often each disk was busy and
// how often requests were waiting behind others over a selectable window.
//
// Usage: diskqueue [-batch] [-detail] [-metrics-addr :9182] [-config file.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"diskqueue/internal/config"
	"diskqueue/internal/dashboard"
	"diskqueue/internal/disks"
	"diskqueue/internal/metrics"
)

var (
	configPath   = flag.String("config", "", "YAML config file (flags override it)")
	sampleEvery  = flag.Duration("sample", 200*time.Millisecond, "sampling period")
	displayEvery = flag.Duration("display", 5*time.Second, "screen refresh period")
	retention    = flag.Duration("retention", 24*time.Hour, "history kept per disk")
	initial      = flag.Int("interval", 1, "initial interval preset (1-5)")
	sysfs        = flag.String("sysfs", disks.DefaultSysfs, "sysfs mount point")
	batch        = flag.Bool("batch", false, "batch mode (no screen clearing, suitable for nohup)")
	detail       = flag.Bool("detail", false, "show windowed p99 and lifetime max queue length")
	metricsAddr  = flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	demo         = flag.Bool("demo", false, "monitor synthetic disks instead of the host's")
)

// loadConfig reads the config file, if any, and applies the flags that were
// set explicitly on top of it.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sample":
			cfg.SampleInterval = config.Duration(*sampleEvery)
		case "display":
			cfg.DisplayInterval = config.Duration(*displayEvery)
		case "retention":
			cfg.Retention = config.Duration(*retention)
		case "interval":
			cfg.InitialPreset = *initial
		case "sysfs":
			cfg.Sysfs = *sysfs
		case "batch":
			cfg.Batch = *batch
		case "detail":
			cfg.Detail = *detail
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		}
	})
	return cfg, cfg.Validate()
}

// buildMonitor discovers the disks and wires their collectors. The returned
// func releases the collectors' file handles.
func buildMonitor(cfg *config.Config, synthetic bool) (*dashboard.Monitor, func(), error) {
	var (
		inv      disks.Inventory
		physical disks.Collector
		virtual  disks.Collector
	)
	closer := func() {}

	if synthetic {
		inv = disks.SyntheticInventory(4, 2)
		seed := time.Now().UnixNano()
		physical = disks.NewSynthetic(inv.Physical, true, seed)
		virtual = disks.NewSynthetic(inv.Virtual, false, seed+1)
	} else {
		var err error
		inv, err = disks.Discover(cfg.Sysfs)
		if err != nil {
			return nil, closer, fmt.Errorf("discover disks in %s: %w", cfg.Sysfs, err)
		}
		physical = disks.NewDiskstatsCollector(inv.Physical)
		if len(inv.Virtual) > 0 {
			ic := disks.NewInflightCollector(cfg.Sysfs, inv.Virtual)
			virtual = ic
			closer = func() { ic.Close() }
		}
	}

	m, err := dashboard.NewMonitor(inv, time.Duration(cfg.Retention), cfg.SizeHint(), physical, virtual)
	if err != nil {
		closer()
		return nil, func() {}, err
	}
	log.Printf("Monitoring %d physical and %d virtual disks", len(m.Physical()), len(m.Virtual()))
	return m, closer, nil
}

// readKeys forwards every byte read from r until r fails.
func readKeys(r io.Reader) <-chan byte {
	keyCh := make(chan byte, 10)
	go func() {
		defer close(keyCh)
		buf := make([]byte, 3)
		for {
			n, err := r.Read(buf)
			for i := 0; i < n; i++ {
				keyCh <- buf[i]
			}
			if err != nil {
				return
			}
		}
	}()
	return keyCh
}

// quietLog sends the standard logger to sink. The returned func restores
// the previous output and replays what sink held.
func quietLog(sink *dashboard.LogSink) func() {
	prev := log.Writer()
	log.SetOutput(sink)
	return func() {
		log.SetOutput(prev)
		sink.Replay(prev)
	}
}

func run(cfg *config.Config) error {
	m, closeCollectors, err := buildMonitor(cfg, *demo)
	if err != nil {
		return err
	}
	defer closeCollectors()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	display := &dashboard.Display{
		Out:       os.Stdout,
		BatchMode: cfg.Batch,
		Detail:    cfg.Detail,
		Presets:   len(cfg.Presets),
	}
	loop := &dashboard.Loop{
		Monitor:     m,
		State:       dashboard.NewState(cfg.PresetDurations(), cfg.InitialPreset, time.Duration(cfg.DisplayInterval)),
		Display:     display,
		SampleEvery: time.Duration(cfg.SampleInterval),
	}

	if cfg.MetricsAddr != "" {
		exp := metrics.NewExporter()
		loop.OnReport = exp.Update
		go func() {
			if err := exp.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Printf("Metrics server: %v", err)
			}
		}()
		log.Printf("Serving metrics on %s/metrics", cfg.MetricsAddr)
	}

	var keys <-chan byte
	fd := int(os.Stdin.Fd())
	if !cfg.Batch && term.IsTerminal(fd) {
		// Registered before the terminal is restored, so it runs after.
		sink := &dashboard.LogSink{}
		defer quietLog(sink)()
		loop.Log = sink

		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("setting raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)
		display.RawMode = true

		// Hide cursor, clear screen
		fmt.Print("\033[?25l\033[2J")
		defer fmt.Print("\033[?25h")

		keys = readKeys(os.Stdin)
	} else if !cfg.Batch {
		log.Println("stdin is not a terminal; interval keys disabled")
	}

	return loop.Run(ctx, keys)
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.Batch {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
		log.Println("Disk Queue Monitor starting in batch mode")
	}

	if err := run(cfg); err != nil {
		log.Fatalf("diskqueue: %v", err)
	}

	if cfg.Batch {
		log.Println("Stopped.")
	} else {
		fmt.Println("\nStopped.")
	}
}
