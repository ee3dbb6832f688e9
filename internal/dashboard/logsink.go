package dashboard

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// LogSink holds log output while the terminal is in raw mode, where a stray
// write would tear the frame. The latest line is shown in the footer and the
// rest is replayed once the terminal is restored.
type LogSink struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	last string
}

// Write implements io.Writer.
func (s *LogSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if line := strings.TrimSpace(string(p)); line != "" {
		if i := strings.LastIndexByte(line, '\n'); i >= 0 {
			line = line[i+1:]
		}
		s.last = line
	}
	return s.buf.Write(p)
}

// Last returns the most recent line written, or "".
func (s *LogSink) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Replay writes everything held so far to w and empties the sink.
func (s *LogSink) Replay(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.buf.WriteTo(w)
	s.last = ""
	return err
}
