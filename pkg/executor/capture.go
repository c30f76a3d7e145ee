package executor

import (
	"strings"
	"sync"
)

// LineWriter is an io.Writer that buffers partial writes and emits complete
// lines, trimmed of trailing whitespace, to the sink. Blank lines are dropped.
// Flush emits whatever partial line remains.
type LineWriter struct {
	mu      sync.Mutex
	pending strings.Builder
	sink    func(line string)
}

func NewLineWriter(sink func(line string)) *LineWriter {
	return &LineWriter{sink: sink}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, b := range p {
		if b == '\n' {
			w.emit(w.pending.String())
			w.pending.Reset()

			continue
		}

		w.pending.WriteByte(b)
	}

	return len(p), nil
}

// Flush emits a trailing partial line. Call once after the producer is done.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending.Len() > 0 {
		w.emit(w.pending.String())
		w.pending.Reset()
	}
}

func (w *LineWriter) emit(raw string) {
	line := strings.TrimRight(raw, " \t\r")
	if line == "" {
		return
	}

	w.sink(line)
}
