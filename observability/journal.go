// Package observability keeps the edit journal: what happened to each
// inline edit session, who made it and through which surface.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/wikiedit/idgen"
	"github.com/hazyhaar/wikiedit/kit"
)

// Outcomes recorded by inlineedit.
const (
	OutcomeSaved     = "saved"
	OutcomeNoop      = "noop"
	OutcomeHandover  = "handover"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Entry is one journal row.
type Entry struct {
	ID         string    `json:"id"`
	Outcome    string    `json:"outcome"`
	Title      string    `json:"title"`
	SessionID  string    `json:"session_id,omitempty"`
	FragmentID string    `json:"fragment_id,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Section    int       `json:"section,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Transport  string    `json:"transport,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	Failure    string    `json:"failure,omitempty"`
	At         time.Time `json:"at"`
}

// OK reports whether the session ended without an error.
func (e Entry) OK() bool { return e.Failure == "" }

// Query filters Recent. Empty fields match everything.
type Query struct {
	Outcome string
	Title   string
	Limit   int
}

// Journal writes and reads edit outcomes.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	newID  idgen.Generator
	now    func() time.Time
}

// NewJournal returns a journal on db, which must carry Schema.
func NewJournal(db *sql.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		db:     db,
		logger: logger,
		newID:  idgen.Prefixed("jrn_", idgen.Default),
		now:    time.Now,
	}
}

// Record stores e. Actor, transport and trace ID default to the ones
// carried by ctx. A write failure is logged, not returned: the wiki has
// already accepted or refused the edit by then.
func (j *Journal) Record(ctx context.Context, e Entry) {
	if e.Actor == "" {
		e.Actor = kit.GetUserID(ctx)
	}
	if e.Transport == "" {
		e.Transport = kit.GetTransport(ctx)
	}
	if e.TraceID == "" {
		e.TraceID = kit.GetTraceID(ctx)
	}
	if e.At.IsZero() {
		e.At = j.now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO edit_journal (entry_id, outcome, page_title, session_id, fragment_id,
			kind, section, actor, transport, trace_id, failure, recorded_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.newID(), e.Outcome, e.Title, e.SessionID, e.FragmentID,
		e.Kind, e.Section, e.Actor, e.Transport, e.TraceID, e.Failure, e.At.UnixMilli())
	if err != nil {
		j.logger.Error("observability: journal write failed", "error", err, "outcome", e.Outcome, "title", e.Title)
	}
}

// Recent returns matching entries, newest first (50 by default).
func (j *Journal) Recent(ctx context.Context, q Query) ([]Entry, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT entry_id, outcome, page_title, session_id, fragment_id, kind, section,
		       actor, transport, trace_id, failure, recorded_at
		FROM edit_journal
		WHERE (?1 = '' OR outcome = ?1) AND (?2 = '' OR page_title = ?2)
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?3`, q.Outcome, q.Title, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("observability: query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&e.ID, &e.Outcome, &e.Title, &e.SessionID, &e.FragmentID, &e.Kind, &e.Section,
			&e.Actor, &e.Transport, &e.TraceID, &e.Failure, &at); err != nil {
			return nil, fmt.Errorf("observability: scan journal: %w", err)
		}
		e.At = time.UnixMilli(at)
		out = append(out, e)
	}
	return out, rows.Err()
}
