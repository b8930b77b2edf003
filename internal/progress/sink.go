package progress

import (
	"context"
	"strings"
)

// Report is a finished run record addressed to a sink.
type Report struct {
	RunID  string
	Source string
	Lines  []string
	// Persisted counts the leading Lines already in the run log.
	Persisted int
}

// Body joins the report lines with newlines.
func (r Report) Body() string {
	return strings.Join(r.Lines, "\n")
}

// Sink delivers a report to one destination. Implementations must honor ctx
// deadlines.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, report Report) error
}
