package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "chaperone/pkg/domain"
	audit "chaperone/pkg/platform/audit"
	txcontext "chaperone/pkg/platform/tx"
)

// Store appends audit events to the audit_events table. Writes join the caller's transaction
// when one is present in the context, so a directive and its audit record commit together.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	var actor *uuid.UUID
	if !event.ActorID.IsNil() {
		a := uuid.UUID(event.ActorID)
		actor = &a
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_events (id, category, occurred_at, actor_id, subject, action, decision, reason, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), string(category), event.Timestamp, actor,
		event.Subject, event.Action, event.Decision, event.Reason, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByActor(ctx context.Context, actor id.ParticipantID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, occurred_at, actor_id, subject, action, decision, reason, request_id
		FROM audit_events
		WHERE actor_id = $1
		ORDER BY occurred_at, id`, uuid.UUID(actor))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
			actorID  uuid.NullUUID
		)
		if err := rows.Scan(&category, &e.Timestamp, &actorID, &e.Subject, &e.Action, &e.Decision, &e.Reason, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		if actorID.Valid {
			e.ActorID = id.ParticipantID(actorID.UUID)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
