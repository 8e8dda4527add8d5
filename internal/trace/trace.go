// Package trace implements the two facilities sharing a process-wide
// configuration: scoped trace spans (enter/leave, backend selected by the
// TRACE environment variable) and per-server atomic statistics counters
// exposed through Prometheus.
package trace

import (
	"fmt"
	"log"
	"os"
)

// Backend selects how spans are recorded.
type Backend int

const (
	BackendNone Backend = iota
	BackendStderr
	BackendOTF
)

// BackendFromEnv reads TRACE (off|echo|otf) and returns the matching
// Backend, defaulting to BackendNone.
func BackendFromEnv() Backend {
	switch os.Getenv("TRACE") {
	case "echo":
		return BackendStderr
	case "otf":
		return BackendOTF
	default:
		return BackendNone
	}
}

// activeBackend is process-wide global configuration, set once by an
// explicit init routine rather than mutated ad hoc.
var activeBackend = BackendFromEnv()

// SetBackend overrides the process-wide trace backend, primarily for tests.
func SetBackend(b Backend) { activeBackend = b }

// Span is a scoped guard returned by Enter; Leave ends it. Callers should
// defer span.Leave() immediately after Enter to guarantee it leaves on
// every exit path.
type Span struct {
	name string
	left bool
}

// Enter pushes a span named name, formatted like log.Printf with fmt/args,
// and returns the guard. The stderr backend echoes entry/exit; the otf
// backend logs the same events under "otf-enter"/"otf-leave" labels; the
// none backend is a no-op.
func Enter(name string, format string, args ...any) *Span {
	s := &Span{name: name}
	if activeBackend == BackendNone {
		return s
	}
	msg := fmt.Sprintf(format, args...)
	switch activeBackend {
	case BackendStderr:
		log.Printf("trace: enter %s: %s", name, msg)
	case BackendOTF:
		log.Printf("trace: otf-enter %s: %s", name, msg)
	}
	return s
}

// Leave ends the span. Idempotent — calling it more than once (e.g. once
// explicitly and once via defer) is safe.
func (s *Span) Leave() {
	if s.left {
		return
	}
	s.left = true
	if activeBackend == BackendNone {
		return
	}
	switch activeBackend {
	case BackendStderr:
		log.Printf("trace: leave %s", s.name)
	case BackendOTF:
		log.Printf("trace: otf-leave %s", s.name)
	}
}
