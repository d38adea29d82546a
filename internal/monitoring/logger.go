// Package monitoring holds the diagnostic logger shared by the viewer's
// library packages.
package monitoring

import (
	"fmt"
	"log"
	"strings"
	"sync"
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

// CapturedLog collects formatted log lines in memory.
type CapturedLog struct {
	mu    sync.Mutex
	lines []string
}

// Logf formats and stores one line.
func (c *CapturedLog) Logf(format string, v ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, fmt.Sprintf(format, v...))
}

// Lines returns a copy of the captured lines.
func (c *CapturedLog) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Contains reports whether any captured line contains substr.
func (c *CapturedLog) Contains(substr string) bool {
	for _, l := range c.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// Capture redirects Logf into a CapturedLog and returns it together with a
// restore function that reinstates the previous logger.
func Capture() (*CapturedLog, func()) {
	prev := Logf
	c := &CapturedLog{}
	Logf = c.Logf
	return c, func() { Logf = prev }
}
