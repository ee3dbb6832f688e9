package dashboard

import "time"

// Action is what the loop should do after a key press.
type Action int

const (
	Refresh Action = iota
	Quit
)

const (
	keyCtrlC = 0x03
	keyCtrlD = 0x04
)

// State is the mutable part of the dashboard loop: the selected lookback and
// when the screen was last drawn.
type State struct {
	Presets     []time.Duration
	Interval    time.Duration
	RenderEvery time.Duration

	lastRender time.Time
}

// NewState selects presets[initial-1] (1-based, clamped) as the interval.
func NewState(presets []time.Duration, initial int, renderEvery time.Duration) *State {
	if initial < 1 || initial > len(presets) {
		initial = 1
	}
	return &State{
		Presets:     presets,
		Interval:    presets[initial-1],
		RenderEvery: renderEvery,
	}
}

// Due reports whether the screen should be redrawn at now.
func (s *State) Due(now time.Time) bool {
	return s.lastRender.IsZero() || now.Sub(s.lastRender) >= s.RenderEvery
}

// Rendered records a redraw at now.
func (s *State) Rendered(now time.Time) {
	s.lastRender = now
}

// HandleKey applies a key press. Digits select a preset; any other key only
// forces a redraw. Ctrl-C and Ctrl-D quit, since raw mode swallows SIGINT.
func (s *State) HandleKey(key byte) Action {
	switch key {
	case keyCtrlC, keyCtrlD:
		return Quit
	}
	if key >= '1' && key <= '9' {
		if i := int(key - '1'); i < len(s.Presets) {
			s.Interval = s.Presets[i]
		}
	}
	s.lastRender = time.Time{}
	return Refresh
}
