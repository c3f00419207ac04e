package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	approvalmodels "chaperone/internal/approval/models"
	"chaperone/internal/domain"
	"chaperone/internal/storage"
	id "chaperone/pkg/domain"
	"chaperone/pkg/platform/sentinel"
)

const messageColumns = `id, conversation_id, sender_id, sequence, content, verdict, reason_code, delivery_status, review_id, annotation, annotated_by, annotated_at, review_resolved_at, created_at`

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m                 domain.Message
		mid, cid, sender  uuid.UUID
		verdict, status   string
		annotation        string
		review, annotator uuid.NullUUID
		annotatedAt       sql.NullTime
		resolvedAt        sql.NullTime
	)
	if err := row.Scan(&mid, &cid, &sender, &m.Sequence, &m.Content, &verdict, &m.Verdict.ReasonCode,
		&status, &review, &annotation, &annotator, &annotatedAt, &resolvedAt, &m.CreatedAt); err != nil {
		return nil, err
	}
	outcome, err := domain.ParseOutcome(verdict)
	if err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	m.ID = id.MessageID(mid)
	m.ConversationID = id.ConversationID(cid)
	m.SenderID = id.ParticipantID(sender)
	m.Verdict.Outcome = outcome
	m.DeliveryStatus = domain.DeliveryStatus(status)
	m.Annotation = domain.Annotation(annotation)
	if review.Valid {
		m.ReviewID = id.ApprovalID(review.UUID)
	}
	if annotator.Valid {
		m.AnnotatedBy = id.ParticipantID(annotator.UUID)
	}
	if annotatedAt.Valid {
		t := annotatedAt.Time
		m.AnnotatedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		m.ReviewResolvedAt = &t
	}
	return &m, nil
}

// AppendMessage advances the conversation's sequence under a row lock, then inserts the
// optional review request and the message, all in one transaction.
func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message, review *approvalmodels.ApprovalRequest, opts storage.AppendOptions) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		var seq int64
		err := s.q(ctx).QueryRowContext(ctx, `
			UPDATE conversations
			SET last_sequence = last_sequence + 1, updated_at = $2
			WHERE id = $1 AND (status = 'active' OR (status = 'paused' AND $3))
			RETURNING last_sequence`,
			uuid.UUID(msg.ConversationID), msg.CreatedAt, opts.AllowPaused,
		).Scan(&seq)
		if errors.Is(err, sql.ErrNoRows) {
			return s.appendRefusal(ctx, msg.ConversationID)
		}
		if err != nil {
			return fmt.Errorf("advance sequence: %w", err)
		}

		if review != nil {
			if err := s.CreateRequest(ctx, review); err != nil {
				return err
			}
		}

		_, err = s.q(ctx).ExecContext(ctx, `
			INSERT INTO messages (`+messageColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, NULL, NULL, $11)`,
			uuid.UUID(msg.ID), uuid.UUID(msg.ConversationID), uuid.UUID(msg.SenderID), seq, msg.Content,
			msg.Verdict.Outcome.String(), msg.Verdict.ReasonCode, string(msg.DeliveryStatus),
			nullUUID(uuid.UUID(msg.ReviewID)), string(msg.Annotation), msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		msg.Sequence = seq
		return nil
	})
}

func (s *Store) appendRefusal(ctx context.Context, cid id.ConversationID) error {
	var status string
	err := s.q(ctx).QueryRowContext(ctx, `SELECT status FROM conversations WHERE id = $1`, uuid.UUID(cid)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read conversation status: %w", err)
	}
	if e := storage.StatusError(domain.ConversationStatus(status)); e != nil {
		return e
	}
	return sentinel.ErrInvalidState
}

func (s *Store) GetMessage(ctx context.Context, mid id.MessageID) (*domain.Message, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, uuid.UUID(mid))
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, cid id.ConversationID, afterSeq int64, limit int) ([]*domain.Message, error) {
	if _, err := s.GetConversation(ctx, cid); err != nil {
		return nil, err
	}
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND sequence > $2
		ORDER BY sequence
		LIMIT $3`, uuid.UUID(cid), afterSeq, lim)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()
	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AdvanceDeliveryStatus only touches rows whose status ranks below the target, so repeated
// or out-of-order receipts never regress a message.
func (s *Store) AdvanceDeliveryStatus(ctx context.Context, cid id.ConversationID, recipient id.ParticipantID, uptoSeq int64, status domain.DeliveryStatus) ([]*domain.Message, error) {
	if _, err := s.GetConversation(ctx, cid); err != nil {
		return nil, err
	}
	lower := storage.LowerStatuses(status)
	if len(lower) == 0 {
		return nil, nil
	}
	from := make([]string, len(lower))
	for i, l := range lower {
		from[i] = string(l)
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		UPDATE messages SET delivery_status = $4
		WHERE conversation_id = $1 AND sender_id <> $2 AND sequence <= $3 AND delivery_status = ANY($5)
		RETURNING `+messageColumns,
		uuid.UUID(cid), uuid.UUID(recipient), uptoSeq, string(status), pq.Array(from))
	if err != nil {
		return nil, fmt.Errorf("advance delivery status: %w", err)
	}
	changed, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(changed, func(a, b *domain.Message) int { return cmp.Compare(a.Sequence, b.Sequence) })
	return changed, nil
}

// ResolveReview closes a message's review once. Only a rejection records the annotator.
func (s *Store) ResolveReview(ctx context.Context, mid id.MessageID, annotation domain.Annotation, by id.ParticipantID, at time.Time) (*domain.Message, error) {
	var (
		annotator   any
		annotatedAt sql.NullTime
	)
	if annotation != domain.AnnotationNone {
		annotator = nullUUID(uuid.UUID(by))
		annotatedAt = sql.NullTime{Time: at, Valid: true}
	}
	row := s.q(ctx).QueryRowContext(ctx, `
		UPDATE messages
		SET annotation = $2, annotated_by = $3, annotated_at = $4, review_resolved_at = $5
		WHERE id = $1 AND annotation = '' AND review_resolved_at IS NULL
		RETURNING `+messageColumns,
		uuid.UUID(mid), string(annotation), annotator, annotatedAt, at)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetMessage(ctx, mid); getErr != nil {
			return nil, getErr
		}
		return nil, sentinel.ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("resolve message review: %w", err)
	}
	return m, nil
}
