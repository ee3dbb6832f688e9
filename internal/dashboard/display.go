package dashboard

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	colorBold  = "\033[1m"
	colorReset = "\033[0m"
)

// P99 Q is the selected interval, Life P99 and Max Q cover every sample
// since startup.
var detailHeader = fmt.Sprintf("%8s%10s%8s", "P99 Q", "Life P99", "Max Q")

// formatDuration formats a lookback the way the header shows it.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

// Display renders reports.
type Display struct {
	Out       io.Writer
	BatchMode bool // no screen clearing or colors, timestamped frames
	RawMode   bool // terminal in raw mode: lines need "\r\n"
	Detail    bool // extra P99/Max queue columns
	Presets   int  // number of selectable presets, for the footer
}

func (d *Display) bold(s string) string {
	if d.BatchMode {
		return s
	}
	return colorBold + s + colorReset
}

// Render writes one frame.
func (d *Display) Render(rep Report) error {
	var buf strings.Builder

	if d.BatchMode {
		fmt.Fprintf(&buf, "[%s] Disk Queue Monitor\n", rep.Now.Format("Mon Jan 02 15:04:05 2006"))
	} else {
		buf.WriteString("\033[H\033[J")
	}
	buf.WriteString("\n")

	switch {
	case !rep.HasData:
		buf.WriteString("Disk usage (waiting for first samples)\n")
	case rep.Capped():
		fmt.Fprintf(&buf, "Disk usage over the last %s (selected interval is %s but not enough data)\n",
			formatDuration(rep.Available), formatDuration(rep.Interval))
	default:
		fmt.Fprintf(&buf, "Disk usage over the last %s\n", formatDuration(rep.Interval))
	}
	buf.WriteString("\n")

	header := fmt.Sprintf("%10s%10s%14s", "Busy", "Behind", "Avg. Queue")
	if d.Detail {
		header += detailHeader
	}
	buf.WriteString(d.bold(header+"      Physical Disk") + "\n")
	for _, r := range rep.Physical {
		d.writeRow(&buf, r, true)
	}

	if len(rep.Virtual) > 0 {
		buf.WriteString("\n")
		header := fmt.Sprintf("%10s%10s", "Busy", "Behind")
		if d.Detail {
			header += detailHeader
		}
		buf.WriteString(d.bold(header+"      Virtual Disk") + "\n")
		for _, r := range rep.Virtual {
			d.writeRow(&buf, r, false)
		}
	}

	buf.WriteString("\n")
	fmt.Fprintf(&buf, "Total samples per disk: %s\n", humanize.Comma(int64(rep.Retained)))
	if rep.Warning != "" {
		fmt.Fprintf(&buf, "Last warning: %s\n", rep.Warning)
	}
	fmt.Fprintf(&buf, "Press 1-%d to select interval; any key to refresh screen.\n", d.presets())
	if d.BatchMode {
		buf.WriteString("\n")
	}

	out := buf.String()
	if d.RawMode {
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	_, err := io.WriteString(d.Out, out)
	return err
}

func (d *Display) presets() int {
	if d.Presets <= 0 {
		return 5
	}
	return d.Presets
}

func (d *Display) writeRow(buf *strings.Builder, r Row, queue bool) {
	if r.OK {
		fmt.Fprintf(buf, "%9.1f%%%9.1f%%", r.Stats.Busy*100, r.Stats.Behind*100)
		if queue {
			fmt.Fprintf(buf, "%14.3f", r.Stats.AvgQueue)
		}
	} else {
		fmt.Fprintf(buf, "%10s%10s", "-", "-")
		if queue {
			fmt.Fprintf(buf, "%14s", "-")
		}
	}
	if d.Detail {
		buf.WriteString(optional(8, r.P99, r.HasP99))
		buf.WriteString(optional(10, r.LifetimeP99, r.HasLifeP99))
		buf.WriteString(optional(8, r.LifetimeMax, r.HasMax))
	}
	fmt.Fprintf(buf, "      %s\n", r.Name)
}

func optional(width int, v float64, ok bool) string {
	if !ok {
		return fmt.Sprintf("%*s", width, "-")
	}
	return fmt.Sprintf("%*.1f", width, v)
}
