package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chaperone/internal/domain"
	"chaperone/internal/storage"
	id "chaperone/pkg/domain"
	"chaperone/pkg/platform/sentinel"
)

const conversationColumns = `id, participant_a, participant_b, status, last_sequence, conditions, match_request_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var (
		c          domain.Conversation
		cid, a, b  uuid.UUID
		status     string
		conditions []byte
		match      uuid.NullUUID
	)
	if err := row.Scan(&cid, &a, &b, &status, &c.LastSequence, &conditions, &match, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = id.ConversationID(cid)
	c.Participants = [2]id.ParticipantID{id.ParticipantID(a), id.ParticipantID(b)}
	c.Status = domain.ConversationStatus(status)
	if match.Valid {
		c.MatchRequestID = id.ApprovalID(match.UUID)
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &c.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions: %w", err)
		}
	}
	if len(c.Conditions) == 0 {
		c.Conditions = nil
	}
	return &c, nil
}

// CreateConversation inserts c unless a conversation for the same match request exists, in
// which case that one is returned with created=false.
func (s *Store) CreateConversation(ctx context.Context, c *domain.Conversation) (*domain.Conversation, bool, error) {
	conditions, err := json.Marshal(nonNil(c.Conditions))
	if err != nil {
		return nil, false, fmt.Errorf("encode conditions: %w", err)
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (match_request_id) DO NOTHING`,
		uuid.UUID(c.ID), uuid.UUID(c.Participants[0]), uuid.UUID(c.Participants[1]), string(c.Status),
		c.LastSequence, conditions, nullUUID(uuid.UUID(c.MatchRequestID)), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		got, err := s.GetConversation(ctx, c.ID)
		return got, err == nil, err
	}
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE match_request_id = $1`, uuid.UUID(c.MatchRequestID))
	existing, err := scanConversation(row)
	if err != nil {
		return nil, false, fmt.Errorf("load conversation for match request: %w", err)
	}
	return existing, false, nil
}

func (s *Store) GetConversation(ctx context.Context, cid id.ConversationID) (*domain.Conversation, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, uuid.UUID(cid))
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *Store) ListConversations(ctx context.Context, participant id.ParticipantID) ([]*domain.Conversation, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY created_at, id`, uuid.UUID(participant))
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()
	var out []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetConversationStatus locks the row, validates the transition and writes it.
func (s *Store) SetConversationStatus(ctx context.Context, cid id.ConversationID, status domain.ConversationStatus, now time.Time) (*domain.Conversation, error) {
	var out *domain.Conversation
	err := s.inTx(ctx, func(ctx context.Context) error {
		row := s.q(ctx).QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1 FOR UPDATE`, uuid.UUID(cid))
		c, err := scanConversation(row)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock conversation: %w", err)
		}
		if c.Status == status {
			out = c
			return nil
		}
		if c.Status == domain.ConversationTerminated {
			return storage.ErrConversationTerminated
		}
		if !c.Status.CanTransitionTo(status) {
			return sentinel.ErrInvalidState
		}
		if _, err := s.q(ctx).ExecContext(ctx, `UPDATE conversations SET status = $2, updated_at = $3 WHERE id = $1`,
			uuid.UUID(cid), string(status), now); err != nil {
			return fmt.Errorf("update conversation status: %w", err)
		}
		c.Status = status
		c.UpdatedAt = now
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
