package core

import (
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/registrysync/internal/reconcile"
	"github.com/mssola/useragent"
)

// DefaultJournalSize is how many import outcomes the journal keeps.
const DefaultJournalSize = 50

// JournalEntry records one import attempt.
type JournalEntry struct {
	ImportID     string         `json:"importId"`
	FileName     string         `json:"fileName"`
	Mode         reconcile.Mode `json:"mode"`
	Outcome      string         `json:"outcome"`
	Message      string         `json:"message,omitempty"`
	Error        string         `json:"error,omitempty"`
	Members      int            `json:"members"`
	Accounts     int            `json:"accounts"`
	SkippedCount int            `json:"skippedCount"`
	Source       string         `json:"source"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	Client       string         `json:"client,omitempty"`
	At           time.Time      `json:"at"`
	DurationMs   int64          `json:"durationMs"`
}

// Journal is a fixed-size ring of recent import outcomes. It lives in memory
// only; the registry snapshots are the durable record.
type Journal struct {
	mu      sync.Mutex
	entries []JournalEntry
	next    int
	full    bool
}

// NewJournal keeps the last size entries. Non-positive sizes use the default.
func NewJournal(size int) *Journal {
	if size <= 0 {
		size = DefaultJournalSize
	}
	return &Journal{entries: make([]JournalEntry, size)}
}

func (j *Journal) Record(e JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries[j.next] = e
	j.next = (j.next + 1) % len(j.entries)
	if j.next == 0 {
		j.full = true
	}
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (j *Journal) Recent(limit int) []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := j.next
	if j.full {
		n = len(j.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]JournalEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (j.next - i + len(j.entries)) % len(j.entries)
		out = append(out, j.entries[idx])
	}
	return out
}

// describeClient condenses a User-Agent into "Browser Version (OS)".
// Crawlers are prefixed with "bot:". Unparseable agents yield "".
func describeClient(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return ""
	}
	p := useragent.New(ua)
	name, version := p.Browser()
	if name == "" {
		return ""
	}
	if p.Bot() {
		return "bot: " + name
	}

	desc := name
	if version != "" {
		desc += " " + version
	}
	if os := p.OS(); os != "" {
		desc += " (" + os + ")"
	}
	return desc
}
