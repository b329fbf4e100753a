package dcc

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/presbrey/dircproxy/internal/ircproto"
)

// ResumeRequest is a pending DCC SEND resume offer (spec.md §3), keyed by
// "sourcenick:port", awaiting a matching DCC ACCEPT from the original
// sender before capture can begin at the requested offset.
type ResumeRequest struct {
	SourceNick    string
	Port          int
	Filename      string
	RemoteAddr    string // host:port of the real sender, for redialing once accepted
	CapturePath   string
	RejectMessage string
	Offset        int64

	timer *time.Timer
}

// ResumeRegistry tracks in-flight resume offers (spec.md §4.3 step 6).
type ResumeRegistry struct {
	mu      sync.Mutex
	pending map[string]*ResumeRequest
}

// NewResumeRegistry returns an empty registry.
func NewResumeRegistry() *ResumeRegistry {
	return &ResumeRegistry{pending: make(map[string]*ResumeRequest)}
}

func resumeKey(nick string, port int) string {
	return ircproto.Lower(nick) + ":" + strconv.Itoa(port)
}

// Offer registers a pending resume, arming a timer that invokes onTimeout
// exactly once if no matching Accept arrives first.
func (r *ResumeRegistry) Offer(req ResumeRequest, timeout time.Duration, onTimeout func(ResumeRequest)) {
	key := resumeKey(req.SourceNick, req.Port)
	r.mu.Lock()
	defer r.mu.Unlock()

	req.timer = time.AfterFunc(timeout, func() {
		r.mu.Lock()
		existing, ok := r.pending[key]
		if ok {
			delete(r.pending, key)
		}
		r.mu.Unlock()
		if ok && onTimeout != nil {
			onTimeout(*existing)
		}
	})
	r.pending[key] = &req
}

// Accept looks up and removes a pending resume matched by a DCC ACCEPT,
// stopping its timeout timer.
func (r *ResumeRegistry) Accept(nick string, port int) (ResumeRequest, bool) {
	key := resumeKey(nick, port)
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[key]
	if !ok {
		return ResumeRequest{}, false
	}
	delete(r.pending, key)
	req.timer.Stop()
	return *req, true
}

// Pending reports whether a resume offer is outstanding for nick:port.
func (r *ResumeRegistry) Pending(nick string, port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[resumeKey(nick, port)]
	return ok
}

// SanitizeFilename reduces an untrusted DCC SEND filename to a safe
// basename: directory separators are stripped (spec.md §4.3 step 3), and
// the degenerate "" / "." / ".." results that a traversal attempt could
// still produce are rejected (spec.md §9's "no cross-language type
// vocabulary" note leaves this edge case to the implementation).
func SanitizeFilename(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	parts := strings.Split(name, "/")
	base := parts[len(parts)-1]
	switch base {
	case "", ".", "..":
		return "", fmt.Errorf("dcc: unsafe filename %q", name)
	}
	return base, nil
}

// CapturePath builds the on-disk path for a capture, optionally prefixing
// the source nick (spec.md §6 dcc_capture_withnick).
func CapturePath(dir, sourceNick, filename string, withNick bool) string {
	base := filename
	if withNick {
		base = sourceNick + "." + filename
	}
	return dir + string(os.PathSeparator) + base
}

// RenameWithSuffix is used when a resume negotiation times out: the
// partial capture target is renamed file.1, file.2, ... so a fresh
// zero-byte capture can start at the original name (spec.md §4.3 step 6,
// scenario 4).
func RenameWithSuffix(path string) (string, error) {
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			if err := os.Rename(path, candidate); err != nil {
				return "", fmt.Errorf("dcc: rename %s: %w", path, err)
			}
			return candidate, nil
		}
	}
}
