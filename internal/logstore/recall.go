package logstore

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/presbrey/dircproxy/internal/ircproto"
)

// recall coarsening thresholds (spec.md §4.5: recent entries get a precise
// clock time, older ones progressively lose precision so a long recall
// buffer stays scannable).
const (
	coarsenToClock = 23 * time.Hour
	coarsenToDay   = 6 * 24 * time.Hour
	coarsenToDate  = 300 * 24 * time.Hour
)

// RecallOptions selects the slice of a LogFile's history to replay.
type RecallOptions struct {
	// MaxLines caps how many trailing entries are considered; <0 means
	// every retained entry (spec.md's chan_log_recall -1).
	MaxLines int
	// NickFilter, if non-empty, keeps only entries whose source nickname
	// is this nick (case-folded, spec.md §2 IRC case-folding).
	NickFilter string
	// Now anchors the coarsening thresholds; tests pass a fixed value,
	// production passes time.Now().
	Now time.Time
}

// RecalledLine is one entry rendered for replay to a reattaching client.
type RecalledLine struct {
	Entry     Entry
	Timestamp string // pre-formatted per the coarsening rule
}

// Recall reads back the retained entries and renders them for replay,
// most recent last. It reads the live file from the start rather than
// relying on the in-memory tail buffer, so it also covers entries written
// before the process's own Open call produced the tail cache (e.g. when a
// previous crash preserved the file).
func (l *LogFile) Recall(opts RecallOptions) ([]RecalledLine, error) {
	if opts.MaxLines == 0 {
		return nil, nil
	}

	l.mu.Lock()
	path := l.path
	l.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logstore: recall open: %w", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		e, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("logstore: recall scan: %w", err)
	}

	if opts.NickFilter != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if ircproto.EqualFold(ircproto.Nick(e.Source), opts.NickFilter) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if opts.MaxLines > 0 && len(entries) > opts.MaxLines {
		entries = entries[len(entries)-opts.MaxLines:]
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	out := make([]RecalledLine, 0, len(entries))
	for _, e := range entries {
		out = append(out, RecalledLine{Entry: e, Timestamp: formatTimestamp(now, e.Time)})
	}
	return out, nil
}

// formatTimestamp renders t relative to now, coarsening precision the
// further back t is (spec.md §4.5).
func formatTimestamp(now, t time.Time) string {
	age := now.Sub(t)
	switch {
	case age < coarsenToClock:
		return "[" + t.Format("15:04") + "]"
	case age < coarsenToDay:
		return "[" + t.Format("Mon 15:04") + "]"
	case age < coarsenToDate:
		return "[" + t.Format("2 Jan") + "]"
	default:
		return "[" + t.Format("2 Jan 2006") + "]"
	}
}

// parseLine reverses formatEntry. It tolerates trailing text containing
// spaces (the text field is never quoted).
func parseLine(line string) (Entry, bool) {
	fields := strings.SplitN(line, " ", 5)
	if len(fields) < 5 {
		return Entry{}, false
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Entry{}, false
	}
	e := Entry{
		Time:        time.Unix(ts, 0),
		Kind:        fields[1],
		Destination: unquoteField(fields[2]),
		Source:      unquoteField(fields[3]),
		Text:        fields[4],
	}
	return e, true
}

func unquoteField(s string) string {
	if s == "-" {
		return ""
	}
	return s
}
