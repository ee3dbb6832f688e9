package dashboard

import (
	"context"
	"time"
)

// Loop drives sampling, redraws and key handling on one timeline.
type Loop struct {
	Monitor     *Monitor
	State       *State
	Display     *Display
	SampleEvery time.Duration

	// OnReport, if set, receives every rendered report.
	OnReport func(Report)
	// Log, if set, holds the log output; its latest line goes in the footer.
	Log *LogSink
	// Now defaults to time.Now.
	Now func() time.Time
}

// Run samples every SampleEvery, redraws when the state says so and reacts
// to keys until ctx is done, keys asks to quit, or a redraw fails. A nil or
// closed keys channel just disables key handling.
func (l *Loop) Run(ctx context.Context, keys <-chan byte) error {
	now := l.Now
	if now == nil {
		now = time.Now
	}

	ticker := time.NewTicker(l.SampleEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t := now()
			l.Monitor.Sample(ctx, t)
			if l.State.Due(t) {
				if err := l.render(t); err != nil {
					return err
				}
			}
		case key, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			if l.State.HandleKey(key) == Quit {
				return nil
			}
			if err := l.render(now()); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) render(t time.Time) error {
	rep := l.Monitor.Report(t, l.State.Interval, l.Display.Detail)
	if l.Log != nil {
		rep.Warning = l.Log.Last()
	}
	if l.OnReport != nil {
		l.OnReport(rep)
	}
	if err := l.Display.Render(rep); err != nil {
		return err
	}
	l.State.Rendered(t)
	return nil
}
