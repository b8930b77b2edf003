package crawler

import (
	"fmt"
	"strings"
)

const (
	// DefaultGridBase is the guide's grid data root.
	DefaultGridBase = "http://guidatv.sky.it/app/guidatv/contenuti/data/grid"
	// DefaultBackendBase serves event descriptions.
	DefaultBackendBase = "http://guidatv.sky.it/EpgBackend"

	// GenrePrefix and GenreSuffix delimit the JSON object inside a genre listing script.
	GenrePrefix = `{"channels":`
	GenreSuffix = `}`
)

// Endpoints builds resource URLs for the guide.
type Endpoints struct {
	GridBase    string
	BackendBase string
}

// DefaultEndpoints points at the public guide.
func DefaultEndpoints() Endpoints {
	return Endpoints{GridBase: DefaultGridBase, BackendBase: DefaultBackendBase}
}

// Genre returns the channel listing URL for a genre.
func (e Endpoints) Genre(name string) string {
	return fmt.Sprintf("%s/grid_%s_channels.js", strings.TrimRight(e.GridBase, "/"), strings.ToLower(name))
}

// ChannelDay returns the daily plan URL of a channel.
func (e Endpoints) ChannelDay(day string, channelID int64) string {
	return fmt.Sprintf("%s/%s/ch_%d.js", strings.TrimRight(e.GridBase, "/"), day, channelID)
}

// EventDescription returns the description URL of an event.
func (e Endpoints) EventDescription(eventID int64) string {
	return fmt.Sprintf("%s/event_description.do?eid=%d", strings.TrimRight(e.BackendBase, "/"), eventID)
}

// Fragment extracts the text running from the first prefix through the last
// suffix, both inclusive. Empty markers match the start and end of body.
func Fragment(body, prefix, suffix string) (string, error) {
	if prefix == "" && suffix == "" {
		return body, nil
	}
	start := 0
	if prefix != "" {
		start = strings.Index(body, prefix)
		if start < 0 {
			return "", ErrFragmentNotFound
		}
	}
	end := len(body)
	if suffix != "" {
		idx := strings.LastIndex(body, suffix)
		if idx < start+len(prefix) {
			return "", ErrFragmentNotFound
		}
		end = idx + len(suffix)
	}
	return body[start:end], nil
}
