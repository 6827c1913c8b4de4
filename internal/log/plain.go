package log

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

var _ Sink = (*plainSink)(nil)

var levelColours = map[Level]string{
	Trace: "\x1b[90m",
	Debug: "\x1b[34m",
	Info:  "\x1b[32m",
	Warn:  "\x1b[33m",
	Error: "\x1b[31m",
}

func newPlainSink(w io.Writer, timestamps, colour bool) *plainSink {
	return &plainSink{w: w, timestamps: timestamps, colour: colour}
}

type plainSink struct {
	lock       sync.Mutex
	w          io.Writer
	timestamps bool
	colour     bool
}

// Log writes "[time] level:scope: message key=value..." on a single line.
func (p *plainSink) Log(entry Entry) error {
	var b strings.Builder
	if p.timestamps {
		b.WriteString(entry.Time.Format("15:04:05.000 "))
	}
	level := entry.Level.String()
	if p.colour {
		level = levelColours[entry.Level] + level + "\x1b[0m"
	}
	b.WriteString(level)
	if scope, ok := entry.Attributes[scopeKey]; ok {
		b.WriteString(":" + scope)
	}
	b.WriteString(": ")
	b.WriteString(entry.Message)
	keys := make([]string, 0, len(entry.Attributes))
	for k := range entry.Attributes {
		if k != scopeKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, entry.Attributes[k])
	}
	b.WriteByte('\n')
	p.lock.Lock()
	defer p.lock.Unlock()
	_, err := io.WriteString(p.w, b.String())
	if err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}
