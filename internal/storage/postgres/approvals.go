package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	approvalmodels "chaperone/internal/approval/models"
	"chaperone/internal/domain"
	id "chaperone/pkg/domain"
	"chaperone/pkg/platform/sentinel"
)

const requestColumns = `id, subject, requester_id, approvers, decisions, status, notes, conditions, version, created_at, updated_at, resolved_at`

func scanRequest(row rowScanner) (*approvalmodels.ApprovalRequest, error) {
	var (
		r                              approvalmodels.ApprovalRequest
		rid, requester                 uuid.UUID
		subject, decisions, conditions []byte
		approvers                      pq.StringArray
		status                         string
		resolved                       sql.NullTime
	)
	if err := row.Scan(&rid, &subject, &requester, &approvers, &decisions, &status, &r.Notes, &conditions,
		&r.Version, &r.CreatedAt, &r.UpdatedAt, &resolved); err != nil {
		return nil, err
	}
	r.ID = id.ApprovalID(rid)
	r.RequesterID = id.ParticipantID(requester)
	r.Status = approvalmodels.Status(status)
	if err := json.Unmarshal(subject, &r.Subject); err != nil {
		return nil, fmt.Errorf("decode subject: %w", err)
	}
	if err := json.Unmarshal(decisions, &r.Decisions); err != nil {
		return nil, fmt.Errorf("decode decisions: %w", err)
	}
	if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	if len(r.Conditions) == 0 {
		r.Conditions = nil
	}
	for _, a := range approvers {
		pid, err := id.ParseParticipantID(a)
		if err != nil {
			return nil, fmt.Errorf("decode approver: %w", err)
		}
		r.Approvers = append(r.Approvers, pid)
	}
	if resolved.Valid {
		t := resolved.Time
		r.ResolvedAt = &t
	}
	return &r, nil
}

type encodedRequest struct {
	subject, decisions, conditions []byte
	approvers                      []string
}

func encodeRequest(r *approvalmodels.ApprovalRequest) (encodedRequest, error) {
	var (
		enc encodedRequest
		err error
	)
	if enc.subject, err = json.Marshal(r.Subject); err != nil {
		return enc, fmt.Errorf("encode subject: %w", err)
	}
	if enc.decisions, err = json.Marshal(r.Decisions); err != nil {
		return enc, fmt.Errorf("encode decisions: %w", err)
	}
	if enc.conditions, err = json.Marshal(nonNil[domain.Condition](r.Conditions)); err != nil {
		return enc, fmt.Errorf("encode conditions: %w", err)
	}
	for _, a := range r.Approvers {
		enc.approvers = append(enc.approvers, a.String())
	}
	return enc, nil
}

func (s *Store) CreateRequest(ctx context.Context, req *approvalmodels.ApprovalRequest) error {
	enc, err := encodeRequest(req)
	if err != nil {
		return err
	}
	version := req.Version
	if version == 0 {
		version = 1
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO approval_requests (id, subject_type, subject_key, subject, requester_id, approvers, decisions, status, notes, conditions, version, created_at, updated_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`,
		uuid.UUID(req.ID), string(req.Subject.Type), req.Subject.Key(), enc.subject, uuid.UUID(req.RequesterID),
		pq.Array(enc.approvers), enc.decisions, string(req.Status), req.Notes, enc.conditions, version,
		req.CreatedAt, req.UpdatedAt, req.ResolvedAt)
	if err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrAlreadyExists
	}
	req.Version = version
	return nil
}

func (s *Store) GetRequest(ctx context.Context, rid id.ApprovalID) (*approvalmodels.ApprovalRequest, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+requestColumns+` FROM approval_requests WHERE id = $1`, uuid.UUID(rid))
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get approval request: %w", err)
	}
	return r, nil
}

// UpdateRequest is a compare-and-swap on version.
func (s *Store) UpdateRequest(ctx context.Context, req *approvalmodels.ApprovalRequest, expected int64) error {
	enc, err := encodeRequest(req)
	if err != nil {
		return err
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE approval_requests
		SET decisions = $3, status = $4, notes = $5, conditions = $6, updated_at = $7, resolved_at = $8, version = version + 1
		WHERE id = $1 AND version = $2`,
		uuid.UUID(req.ID), expected, enc.decisions, string(req.Status), req.Notes, enc.conditions, req.UpdatedAt, req.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update approval request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetRequest(ctx, req.ID); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	req.Version = expected + 1
	return nil
}

func (s *Store) ListPendingFor(ctx context.Context, approver id.ParticipantID) ([]*approvalmodels.ApprovalRequest, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+requestColumns+` FROM approval_requests
		WHERE $1 = ANY(approvers)
		  AND status NOT IN ('approved', 'rejected')
		  AND decisions -> $2::text ->> 'decision' = 'pending'
		ORDER BY created_at, id`, uuid.UUID(approver), approver.String())
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return collectRequests(rows)
}

func (s *Store) FindOpenBySubject(ctx context.Context, requester id.ParticipantID, key string) (*approvalmodels.ApprovalRequest, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM approval_requests
		WHERE requester_id = $1 AND subject_key = $2 AND status NOT IN ('approved', 'rejected')
		ORDER BY created_at DESC
		LIMIT 1`, uuid.UUID(requester), key)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find approval by subject: %w", err)
	}
	return r, nil
}

func collectRequests(rows *sql.Rows) ([]*approvalmodels.ApprovalRequest, error) {
	defer rows.Close()
	var out []*approvalmodels.ApprovalRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
