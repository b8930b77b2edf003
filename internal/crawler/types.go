package crawler

import "time"

// NoEventID marks plan entries that carry no real event.
const NoEventID int64 = -1

// Genre is a channel category stored in persistence.
type Genre struct {
	ID      int
	Name    string
	Enabled bool
	// JSON holds the last archived listing payload for the genre.
	JSON string
}

// Channel is one entry of a genre listing.
type Channel struct {
	ID      int64  `json:"id"`
	Number  int    `json:"number"`
	Name    string `json:"name"`
	LogoURL string `json:"logomsite"`
}

// GenreListing is the decoded channel list of a genre.
type GenreListing struct {
	Channels []Channel `json:"channels"`
}

// Event is one scheduled programme inside a daily plan.
type Event struct {
	ID              int64  `json:"id"`
	ProgramID       int64  `json:"pid"`
	StartTime       string `json:"starttime"`
	Duration        int    `json:"dur"`
	Title           string `json:"title"`
	NormalizedTitle string `json:"normalizedtitle"`
	Summary         string `json:"desc"`
	Genre           string `json:"genre"`
	Subgenre        string `json:"subgenre"`
	Premiere        bool   `json:"prima"`
}

// ChannelPlan is the decoded schedule of a channel for one day.
type ChannelPlan struct {
	ChannelID int64   `json:"channel"`
	Plan      []Event `json:"plan"`
}

// EventDescription is the decoded long description of an event.
type EventDescription struct {
	Description string `json:"description"`
}

// MailCredentials carries the notification settings read from persistence.
type MailCredentials struct {
	Username string
	Password string
	To       string
}

// RunLog is the persisted form of a run record.
type RunLog struct {
	RunID  string
	Source string
	// FirstSeq numbers the first of Lines; zero means 1.
	FirstSeq  int
	Lines     []string
	CreatedAt time.Time
}

// Counters tallies what one run did.
type Counters struct {
	Genres          int `json:"genres"`
	GenresFailed    int `json:"genres_failed"`
	Channels        int `json:"channels"`
	ChannelsSkipped int `json:"channels_skipped"`
	ChannelsFailed  int `json:"channels_failed"`
	Days            int `json:"days"`
	DaysFailed      int `json:"days_failed"`
	Events          int `json:"events"`
	EventsFailed    int `json:"events_failed"`
}

// Summary describes a finished run.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Aborted    bool      `json:"aborted"`
	Error      string    `json:"error,omitempty"`
	Counters   Counters  `json:"counters"`
	Lines      []string  `json:"lines"`
}
