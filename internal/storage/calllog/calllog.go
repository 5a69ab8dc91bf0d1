// Package calllog records finished calls in SQLite.
package calllog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

type Outcome string

const (
	Completed  Outcome = "completed"
	Unanswered Outcome = "unanswered"
	Missed     Outcome = "missed"
)

type Entry struct {
	ID           int64           `json:"id"`
	CallID       string          `json:"callId"`
	ChatID       string          `json:"chatId"`
	ChatName     string          `json:"chatName"`
	ChatType     domain.ChatType `json:"chatType"`
	CallType     domain.CallType `json:"callType"`
	Direction    Direction       `json:"direction"`
	Outcome      Outcome         `json:"outcome"`
	Participants int             `json:"participants"`
	StartedAt    time.Time       `json:"startedAt"`
	ConnectedAt  time.Time       `json:"connectedAt,omitzero"`
	EndedAt      time.Time       `json:"endedAt"`
}

// Duration is the connected time of a completed call.
func (e Entry) Duration() time.Duration {
	if e.ConnectedAt.IsZero() {
		return 0
	}
	return e.EndedAt.Sub(e.ConnectedAt)
}

type Log struct {
	db *sql.DB

	mu     sync.Mutex
	active *Entry
}

// Open opens or creates the log at path.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("call log dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		`CREATE TABLE IF NOT EXISTS calls (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			call_id       TEXT NOT NULL,
			chat_id       TEXT NOT NULL DEFAULT '',
			chat_name     TEXT NOT NULL DEFAULT '',
			chat_type     TEXT NOT NULL DEFAULT '',
			call_type     TEXT NOT NULL DEFAULT '',
			direction     TEXT NOT NULL,
			outcome       TEXT NOT NULL,
			participants  INTEGER NOT NULL DEFAULT 0,
			started_at    INTEGER NOT NULL,
			connected_at  INTEGER NOT NULL DEFAULT 0,
			ended_at      INTEGER NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS calls_started_at ON calls (started_at DESC)",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("call log schema: %w", err)
		}
	}
	log.Info().Str("module", "storage.calllog").Str("path", path).Msg("call log opened")
	return &Log{db: db}, nil
}

func (l *Log) Close() error { return l.db.Close() }

// Observe follows session snapshots and writes one row per call once the
// session returns to idle.
func (l *Log) Observe(st domain.CallState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if l.active != nil && (st.Status == domain.StatusIdle || st.CallID != l.active.CallID) {
		l.finishLocked(now)
	}
	if st.Status == domain.StatusIdle || st.CallID == "" {
		return
	}
	if l.active == nil {
		dir := Incoming
		if st.Initiator {
			dir = Outgoing
		}
		l.active = &Entry{
			CallID:    st.CallID,
			ChatID:    st.Chat.ChatID,
			ChatName:  st.Chat.ChatName,
			ChatType:  st.Chat.ChatType,
			CallType:  st.CallType,
			Direction: dir,
			StartedAt: now,
		}
	}
	a := l.active
	a.CallType = st.CallType
	if st.Status == domain.StatusConnected && a.ConnectedAt.IsZero() {
		a.ConnectedAt = now
		if !st.StartedAt.IsZero() {
			a.ConnectedAt = st.StartedAt
		}
	}
	a.Participants = max(a.Participants, len(st.Participants))
}

func (l *Log) finishLocked(now time.Time) {
	e := *l.active
	l.active = nil
	e.EndedAt = now
	switch {
	case !e.ConnectedAt.IsZero():
		e.Outcome = Completed
	case e.Direction == Outgoing:
		e.Outcome = Unanswered
	default:
		e.Outcome = Missed
	}
	if _, err := l.insert(context.Background(), e); err != nil {
		log.Error().Str("module", "storage.calllog").Str("call_id", e.CallID).Err(err).Msg("call not recorded")
	}
}

func (l *Log) insert(ctx context.Context, e Entry) (int64, error) {
	res, err := l.db.ExecContext(ctx, `INSERT INTO calls
		(call_id, chat_id, chat_name, chat_type, call_type, direction, outcome, participants, started_at, connected_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CallID, e.ChatID, e.ChatName, string(e.ChatType), string(e.CallType), string(e.Direction), string(e.Outcome),
		e.Participants, e.StartedAt.UnixMilli(), unixMilli(e.ConnectedAt), e.EndedAt.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// List returns the most recent calls first.
func (l *Log) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT id, call_id, chat_id, chat_name, chat_type, call_type, direction, outcome,
		participants, started_at, connected_at, ended_at
		FROM calls ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                         Entry
			chatType, callType        string
			direction, outcome        string
			started, connected, ended int64
		)
		if err := rows.Scan(&e.ID, &e.CallID, &e.ChatID, &e.ChatName, &chatType, &callType, &direction, &outcome,
			&e.Participants, &started, &connected, &ended); err != nil {
			return nil, err
		}
		e.ChatType = domain.ChatType(chatType)
		e.CallType = domain.CallType(callType)
		e.Direction = Direction(direction)
		e.Outcome = Outcome(outcome)
		e.StartedAt = time.UnixMilli(started)
		if connected > 0 {
			e.ConnectedAt = time.UnixMilli(connected)
		}
		e.EndedAt = time.UnixMilli(ended)
		out = append(out, e)
	}
	return out, rows.Err()
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
