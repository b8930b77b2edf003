// Package postgres provides the Postgres-backed persistence gateway.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
)

// Config controls the Postgres connection pool used by the gateway.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Location decides where "today" starts when archiving old events.
	Location *time.Location
}

// pool is the subset of pgxpool.Pool the gateway relies on.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
	Ping(context.Context) error
	Close()
}

// Gateway implements crawler.Gateway against Postgres.
type Gateway struct {
	pool pool
	loc  *time.Location
	now  func() time.Time
}

var _ crawler.Gateway = (*Gateway)(nil)

// NewGateway connects a pgx pool using the provided config.
func NewGateway(ctx context.Context, cfg Config) (*Gateway, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewGatewayWithPool(p, cfg.Location)
}

// NewGatewayWithPool constructs a gateway from an existing pool (primarily for testing).
func NewGatewayWithPool(p pool, loc *time.Location) (*Gateway, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if loc == nil {
		loc = time.Local
	}
	return &Gateway{pool: p, loc: loc, now: time.Now}, nil
}

// Close releases the underlying pool resources.
func (g *Gateway) Close() {
	if g == nil || g.pool == nil {
		return
	}
	g.pool.Close()
}

// Ping checks the database is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return wrapError(g.pool.Ping(ctx), "ping")
}

// ListEnabledGenres returns the enabled genres ordered by id.
func (g *Gateway) ListEnabledGenres(ctx context.Context) ([]crawler.Genre, error) {
	rows, err := g.pool.Query(ctx, `
SELECT id, name, enabled, COALESCE(json, '')
FROM genres
WHERE enabled
ORDER BY id`)
	if err != nil {
		return nil, wrapError(err, "list genres")
	}
	defer rows.Close()

	var genres []crawler.Genre
	for rows.Next() {
		var genre crawler.Genre
		if err := rows.Scan(&genre.ID, &genre.Name, &genre.Enabled, &genre.JSON); err != nil {
			return nil, wrapError(err, "scan genre")
		}
		genres = append(genres, genre)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(err, "list genres")
	}
	return genres, nil
}

// IsChannelSkipped reports whether the channel is on the skip list.
func (g *Gateway) IsChannelSkipped(ctx context.Context, number int, name string) (bool, error) {
	var skipped bool
	err := g.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM skip_channels WHERE number = $1 AND name = $2)`,
		number, name,
	).Scan(&skipped)
	if err != nil {
		return false, wrapError(err, "check skip list")
	}
	return skipped, nil
}

// UpsertChannel inserts or refreshes a channel. A nil logo keeps the stored one.
func (g *Gateway) UpsertChannel(ctx context.Context, genreID int, channel crawler.Channel, logo []byte) error {
	_, err := g.pool.Exec(ctx, `
INSERT INTO channels (id, genre_id, number, name, logo_url, logo, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (id) DO UPDATE SET
	genre_id = EXCLUDED.genre_id,
	number = EXCLUDED.number,
	name = EXCLUDED.name,
	logo_url = EXCLUDED.logo_url,
	logo = COALESCE(EXCLUDED.logo, channels.logo),
	updated_at = NOW()`,
		channel.ID, genreID, channel.Number, channel.Name, channel.LogoURL, logo,
	)
	return wrapError(err, "upsert channel")
}

// ArchiveGenreJSON stores the raw listing payload on the genre row.
func (g *Gateway) ArchiveGenreJSON(ctx context.Context, genreID int, raw string) error {
	tag, err := g.pool.Exec(ctx,
		`UPDATE genres SET json = $1, json_updated_at = NOW() WHERE id = $2`,
		raw, genreID,
	)
	if err != nil {
		return wrapError(err, "archive genre json")
	}
	if tag.RowsAffected() == 0 {
		return &crawler.PersistenceError{Op: "archive genre json", Err: crawler.ErrNotFound}
	}
	return nil
}

// ArchiveChannelDayJSON stores the raw daily plan for the channel.
func (g *Gateway) ArchiveChannelDayJSON(ctx context.Context, channelID int64, dayOffset int, raw string) error {
	_, err := g.pool.Exec(ctx, `
INSERT INTO channel_plans (channel_id, day_offset, json, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (channel_id, day_offset) DO UPDATE SET
	json = EXCLUDED.json,
	updated_at = NOW()`,
		channelID, dayOffset, raw,
	)
	return wrapError(err, "archive channel plan")
}

// UpsertEvent inserts or refreshes an event. The description is stored as
// given, so an absent one is stored as empty.
func (g *Gateway) UpsertEvent(
	ctx context.Context,
	event crawler.Event,
	channelID int64,
	start time.Time,
	description string,
) error {
	_, err := g.pool.Exec(ctx, `
INSERT INTO events (
	id, channel_id, program_id, start_time, duration_minutes, title,
	normalized_title, summary, description, genre, subgenre, premiere, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
ON CONFLICT (id) DO UPDATE SET
	channel_id = EXCLUDED.channel_id,
	program_id = EXCLUDED.program_id,
	start_time = EXCLUDED.start_time,
	duration_minutes = EXCLUDED.duration_minutes,
	title = EXCLUDED.title,
	normalized_title = EXCLUDED.normalized_title,
	summary = EXCLUDED.summary,
	description = EXCLUDED.description,
	genre = EXCLUDED.genre,
	subgenre = EXCLUDED.subgenre,
	premiere = EXCLUDED.premiere,
	updated_at = NOW()`,
		event.ID, channelID, event.ProgramID, start, event.Duration, event.Title,
		event.NormalizedTitle, event.Summary, description, event.Genre, event.Subgenre, event.Premiere,
	)
	return wrapError(err, "upsert event")
}

const eventColumns = `id, channel_id, program_id, start_time, end_time, duration_minutes, title,
	normalized_title, summary, description, genre, subgenre, premiere, updated_at`

const endedBefore = `COALESCE(end_time, start_time + make_interval(mins => duration_minutes)) < $1`

// PreRunMaintenance moves events that ended before today into the history
// table and clears the archived daily plans, in one transaction.
func (g *Gateway) PreRunMaintenance(ctx context.Context) error {
	now := g.now().In(g.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, g.loc)

	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return wrapError(err, "begin maintenance")
	}

	statements := []struct {
		op   string
		sql  string
		args []any
	}{
		{
			op: "archive events",
			sql: `INSERT INTO events_history (` + eventColumns + `)
SELECT ` + eventColumns + ` FROM events WHERE ` + endedBefore + `
ON CONFLICT (id) DO UPDATE SET
	channel_id = EXCLUDED.channel_id,
	start_time = EXCLUDED.start_time,
	end_time = EXCLUDED.end_time,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	updated_at = EXCLUDED.updated_at`,
			args: []any{today},
		},
		{op: "delete archived events", sql: `DELETE FROM events WHERE ` + endedBefore, args: []any{today}},
		{op: "clear channel plans", sql: `DELETE FROM channel_plans`},
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt.sql, stmt.args...); err != nil {
			_ = tx.Rollback(ctx)
			return wrapError(err, stmt.op)
		}
	}
	return wrapError(tx.Commit(ctx), "commit maintenance")
}

// PostRunMaintenance derives each event's end time from the next event on the
// same channel, falling back to start plus duration for the last one.
func (g *Gateway) PostRunMaintenance(ctx context.Context) error {
	_, err := g.pool.Exec(ctx, `
UPDATE events AS e
SET end_time = COALESCE(n.next_start, e.start_time + make_interval(mins => e.duration_minutes))
FROM (
	SELECT id, LEAD(start_time) OVER (PARTITION BY channel_id ORDER BY start_time) AS next_start
	FROM events
) AS n
WHERE e.id = n.id`)
	return wrapError(err, "fix event end times")
}

var runLogColumns = []string{"run_id", "seq", "source", "message", "created_at"}

// AppendRunLog writes one run_log row per record line, numbered from
// entry.FirstSeq.
func (g *Gateway) AppendRunLog(ctx context.Context, entry crawler.RunLog) error {
	if len(entry.Lines) == 0 {
		return nil
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = g.now()
	}
	first := entry.FirstSeq
	if first < 1 {
		first = 1
	}
	rows := make([][]any, 0, len(entry.Lines))
	for i, line := range entry.Lines {
		rows = append(rows, []any{entry.RunID, first + i, entry.Source, line, createdAt})
	}
	_, err := g.pool.CopyFrom(ctx, pgx.Identifier{"run_log"}, runLogColumns, pgx.CopyFromRows(rows))
	return wrapError(err, "append run log")
}

// StringParam returns the named parameter. A missing row yields
// crawler.ErrParamNotFound.
func (g *Gateway) StringParam(ctx context.Context, name string) (string, error) {
	var value string
	err := g.pool.QueryRow(ctx, `SELECT value FROM params WHERE name = $1`, name).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", &crawler.PersistenceError{Op: "param " + name, Err: crawler.ErrParamNotFound}
		}
		return "", wrapError(err, "param "+name)
	}
	return value, nil
}

// IntParam returns the named parameter parsed as an integer.
func (g *Gateway) IntParam(ctx context.Context, name string) (int, error) {
	raw, err := g.StringParam(ctx, name)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &crawler.PersistenceError{Op: "param " + name, Err: fmt.Errorf("not an integer: %w", err)}
	}
	return value, nil
}
