// Package logstore implements the append-only per-channel/private/server
// log files and their recall-on-attach behavior (spec.md §3 LogFile, §4.5).
package logstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Entry is one logical log record (spec.md §3: "an append-only ordered
// sequence of log entries {timestamp, event_kind, destination, source, text}").
type Entry struct {
	Time        time.Time
	Kind        string // "PRIVMSG", "NOTICE", "CTCP", or an event name
	Destination string
	Source      string
	Text        string
}

// IsMessage reports whether this entry should be replayed as a synthetic
// PRIVMSG/NOTICE/CTCP rather than a bouncer NOTICE (spec.md §4.5).
func (e Entry) IsMessage() bool {
	switch e.Kind {
	case "PRIVMSG", "NOTICE", "CTCP":
		return true
	}
	return false
}

// LogFile is an append-only log with an optional line cap. Rotation keeps
// the most recent MaxLines entries and never drops an entry that was
// appended before the rotation happened in the same call (spec.md
// invariant 7).
type LogFile struct {
	mu       sync.Mutex
	path     string
	f        *os.File
	open     bool
	nlines   int
	maxLines int
	tail     []string // ring buffer of at most maxLines raw lines

	// Program, if set, receives every appended line alongside the on-disk
	// file (the log_program directive). A write failure here never fails
	// Append itself — the file is the durable record, the program is best
	// effort.
	Program *ProgramSink
}

// Open creates (or appends to) the log file at path. maxLines <= 0 means
// unbounded.
func Open(path string, maxLines int) (*LogFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("logstore: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("logstore: open %s: %w", path, err)
	}
	lf := &LogFile{path: path, f: f, open: true, maxLines: maxLines}
	lf.nlines = countLines(path)
	if maxLines > 0 {
		lf.tail = tailLines(path, maxLines)
	}
	return lf, nil
}

// Close closes the current file handle.
func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil
	}
	l.open = false
	return l.f.Close()
}

// IsOpen reports whether the file currently has a writer descriptor.
func (l *LogFile) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// NLines reports the number of lines currently believed to be on disk
// (post-rotation, this is <= MaxLines when a cap is set).
func (l *LogFile) NLines() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nlines
}

// Append writes one entry and rotates if the cap was just exceeded.
func (l *LogFile) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("logstore: reopen %s: %w", l.path, err)
		}
		l.f = f
		l.open = true
	}

	line := formatEntry(e)
	if _, err := l.f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("logstore: write %s: %w", l.path, err)
	}
	l.nlines++
	if l.Program != nil {
		_ = l.Program.Write(line)
	}

	if l.maxLines > 0 {
		l.tail = append(l.tail, line)
		if len(l.tail) > l.maxLines {
			l.tail = l.tail[len(l.tail)-l.maxLines:]
		}
		if l.nlines > l.maxLines {
			if err := l.rotateLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

// rotateLocked writes the retained tail into a fresh file and swaps it in.
// The log is reopened for appending and the old descriptor is closed right
// away. Caller holds l.mu.
func (l *LogFile) rotateLocked() error {
	tmpPath := l.path + ".rotating"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("logstore: rotate create: %w", err)
	}
	for _, line := range l.tail {
		if _, err := tmp.WriteString(line + "\n"); err != nil {
			tmp.Close()
			return fmt.Errorf("logstore: rotate write: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("logstore: rotate close: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("logstore: rotate rename: %w", err)
	}

	oldFd := l.f
	newFd, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("logstore: rotate reopen: %w", err)
	}
	l.f = newFd
	l.nlines = len(l.tail)
	oldFd.Close()
	return nil
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		n++
	}
	return n
}

func tailLines(path string, max int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if len(lines) > max {
			lines = lines[1:]
		}
	}
	return lines
}

// formatEntry renders "<unix_ts> <event_name> <destination> <source> <text>".
func formatEntry(e Entry) string {
	return strings.Join([]string{
		strconv.FormatInt(e.Time.Unix(), 10),
		e.Kind,
		quoteField(e.Destination),
		quoteField(e.Source),
		e.Text,
	}, " ")
}

func quoteField(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
