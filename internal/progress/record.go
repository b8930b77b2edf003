package progress

import (
	"fmt"
	"strconv"
	"sync"
)

// Record is the ordered list of status lines for one run.
type Record struct {
	mu        sync.Mutex
	lines     []string
	persisted int
}

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return &Record{}
}

// Add appends a line.
func (r *Record) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

// Addf appends a formatted line.
func (r *Record) Addf(format string, args ...any) {
	r.Add(fmt.Sprintf(format, args...))
}

// Lines returns a copy of the recorded lines.
func (r *Record) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Len reports how many lines were recorded.
func (r *Record) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// MarkPersisted notes that every line recorded so far is already stored.
func (r *Record) MarkPersisted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persisted = len(r.lines)
}

// Persisted reports how many leading lines are already stored.
func (r *Record) Persisted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persisted
}

// Cursor tracks the unit being processed so an abort can be located.
type Cursor struct {
	Genre         string
	ChannelName   string
	ChannelNumber int
	Date          string
	EventID       int64
}

// NewCursor returns a cursor positioned on nothing.
func NewCursor() *Cursor {
	c := &Cursor{}
	c.Reset("")
	return c
}

// Reset positions the cursor at the start of a genre.
func (c *Cursor) Reset(genre string) {
	c.Genre = genre
	c.ChannelName = ""
	c.ChannelNumber = -1
	c.Date = ""
	c.EventID = -1
}

// Lines renders the cursor for the run record.
func (c Cursor) Lines() []string {
	return []string{
		"curGenre: " + orNull(c.Genre),
		"curChnName: " + orNull(c.ChannelName),
		"curChnNum: " + strconv.Itoa(c.ChannelNumber),
		"curDate: " + orNull(c.Date),
		"curEvent: " + strconv.FormatInt(c.EventID, 10),
	}
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}
