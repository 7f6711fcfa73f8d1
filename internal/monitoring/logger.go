package monitoring

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Tagged returns a logger that prefixes every line with tag. Lookups of Logf
// happen per call so a later SetLogger still applies.
func Tagged(tag string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf(tag+": "+format, v...)
	}
}

// Line is one entry held by a Ring.
type Line struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Ring keeps the most recent log lines in memory for the admin pages.
type Ring struct {
	mu    sync.Mutex
	lines []Line
	next  int
	full  bool
}

// NewRing creates a ring holding up to size lines. Sizes below one are
// treated as one.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{lines: make([]Line, size)}
}

// Printf formats a line into the ring.
func (r *Ring) Printf(format string, v ...interface{}) {
	r.Add(fmt.Sprintf(format, v...))
}

// Add appends a line, evicting the oldest when full.
func (r *Ring) Add(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = Line{Time: time.Now(), Text: text}
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns the held lines, oldest first.
func (r *Ring) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Line, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]Line, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}

// Tee returns a logger that writes to both the ring and the Logf installed
// at the time of the call, so SetLogger(r.Tee()) does not recurse.
func (r *Ring) Tee() func(format string, v ...interface{}) {
	logf := Logf
	return func(format string, v ...interface{}) {
		r.Printf(format, v...)
		logf(format, v...)
	}
}
