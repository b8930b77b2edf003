package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Shape is the closed set of payloads served by the guide.
type Shape interface {
	GenreListing | ChannelPlan | EventDescription
}

// Decoded is the outcome of a successful decode. Present is false when the
// input carried no data at all.
type Decoded[T Shape] struct {
	Value   T
	Present bool
}

var errMissingID = errors.New("missing id")

// Decode maps raw JSON text onto one of the known shapes. Empty input and a
// bare null decode to "no data"; anything else that does not fit the shape
// yields a *DecodeError.
func Decode[T Shape](raw string) (Decoded[T], error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return Decoded[T]{}, nil
	}

	var (
		zero  T
		value any
		shape string
		err   error
	)
	switch any(zero).(type) {
	case GenreListing:
		shape = "genre listing"
		value, err = decodeGenreListing([]byte(trimmed))
	case ChannelPlan:
		shape = "channel plan"
		value, err = decodeChannelPlan([]byte(trimmed))
	case EventDescription:
		shape = "event description"
		value, err = decodeEventDescription([]byte(trimmed))
	}
	if err != nil {
		return Decoded[T]{}, &DecodeError{Shape: shape, Err: err}
	}
	return Decoded[T]{Value: value.(T), Present: true}, nil
}

// DecodeGenreListing decodes a trimmed genre listing fragment.
func DecodeGenreListing(raw string) (Decoded[GenreListing], error) {
	return Decode[GenreListing](raw)
}

// DecodeChannelPlan decodes a channel's daily plan.
func DecodeChannelPlan(raw string) (Decoded[ChannelPlan], error) {
	return Decode[ChannelPlan](raw)
}

// DecodeEventDescription decodes an event description payload.
func DecodeEventDescription(raw string) (Decoded[EventDescription], error) {
	return Decode[EventDescription](raw)
}

type wireChannel struct {
	ID      *int64 `json:"id"`
	Number  int    `json:"number"`
	Name    string `json:"name"`
	LogoURL string `json:"logomsite"`
}

type wireGenreListing struct {
	Channels []wireChannel `json:"channels"`
}

type wireEvent struct {
	ID              *int64  `json:"id"`
	ProgramID       int64   `json:"pid"`
	StartTime       string  `json:"starttime"`
	Duration        int     `json:"dur"`
	Title           string  `json:"title"`
	NormalizedTitle string  `json:"normalizedtitle"`
	Summary         string  `json:"desc"`
	Genre           string  `json:"genre"`
	Subgenre        string  `json:"subgenre"`
	Premiere        bool    `json:"prima"`
}

type wireChannelPlan struct {
	ChannelID int64       `json:"channel"`
	Plan      []wireEvent `json:"plan"`
}

func decodeGenreListing(data []byte) (GenreListing, error) {
	var wire wireGenreListing
	if err := json.Unmarshal(data, &wire); err != nil {
		return GenreListing{}, fmt.Errorf("unmarshal: %w", err)
	}
	out := GenreListing{Channels: make([]Channel, 0, len(wire.Channels))}
	for i, ch := range wire.Channels {
		if ch.ID == nil {
			return GenreListing{}, fmt.Errorf("channel %d: %w", i, errMissingID)
		}
		out.Channels = append(out.Channels, Channel{
			ID:      *ch.ID,
			Number:  ch.Number,
			Name:    ch.Name,
			LogoURL: ch.LogoURL,
		})
	}
	return out, nil
}

func decodeChannelPlan(data []byte) (ChannelPlan, error) {
	var wire wireChannelPlan
	if err := json.Unmarshal(data, &wire); err != nil {
		return ChannelPlan{}, fmt.Errorf("unmarshal: %w", err)
	}
	out := ChannelPlan{ChannelID: wire.ChannelID, Plan: make([]Event, 0, len(wire.Plan))}
	for i, ev := range wire.Plan {
		if ev.ID == nil {
			return ChannelPlan{}, fmt.Errorf("event %d: %w", i, errMissingID)
		}
		out.Plan = append(out.Plan, Event{
			ID:              *ev.ID,
			ProgramID:       ev.ProgramID,
			StartTime:       ev.StartTime,
			Duration:        ev.Duration,
			Title:           ev.Title,
			NormalizedTitle: ev.NormalizedTitle,
			Summary:         ev.Summary,
			Genre:           ev.Genre,
			Subgenre:        ev.Subgenre,
			Premiere:        ev.Premiere,
		})
	}
	return out, nil
}

func decodeEventDescription(data []byte) (EventDescription, error) {
	var out EventDescription
	if err := json.Unmarshal(data, &out); err != nil {
		return EventDescription{}, fmt.Errorf("unmarshal: %w", err)
	}
	return out, nil
}
