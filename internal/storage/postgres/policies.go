package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	policymodels "chaperone/internal/policy/models"
	id "chaperone/pkg/domain"
	"chaperone/pkg/platform/sentinel"
)

func (s *Store) GetPolicy(ctx context.Context, ward id.ParticipantID) (*policymodels.PermissionPolicy, error) {
	var body []byte
	err := s.q(ctx).QueryRowContext(ctx, `SELECT body FROM permission_policies WHERE ward_id = $1`, uuid.UUID(ward)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	var p policymodels.PermissionPolicy
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return &p, nil
}

func (s *Store) PutPolicy(ctx context.Context, p *policymodels.PermissionPolicy) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO permission_policies (ward_id, body, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ward_id) DO UPDATE SET body = EXCLUDED.body, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`,
		uuid.UUID(p.WardID), body, nullUUID(uuid.UUID(p.UpdatedBy)), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put policy: %w", err)
	}
	return nil
}

const overrideColumns = `id, ward_id, justification, status, granted_by, duration_ms, requested_at, granted_at, revoked_at`

func scanOverride(row rowScanner) (*policymodels.EmergencyOverride, error) {
	var (
		o                  policymodels.EmergencyOverride
		oid, ward          uuid.UUID
		status             string
		grantedBy          uuid.NullUUID
		durationMS         int64
		grantedAt, revoked sql.NullTime
	)
	if err := row.Scan(&oid, &ward, &o.Justification, &status, &grantedBy, &durationMS, &o.RequestedAt, &grantedAt, &revoked); err != nil {
		return nil, err
	}
	o.ID = id.OverrideID(oid)
	o.WardID = id.ParticipantID(ward)
	o.Status = policymodels.OverrideStatus(status)
	o.Duration = time.Duration(durationMS) * time.Millisecond
	if grantedBy.Valid {
		o.GrantedBy = id.ParticipantID(grantedBy.UUID)
	}
	if grantedAt.Valid {
		t := grantedAt.Time
		o.GrantedAt = &t
	}
	if revoked.Valid {
		t := revoked.Time
		o.RevokedAt = &t
	}
	return &o, nil
}

func (s *Store) CreateOverride(ctx context.Context, o *policymodels.EmergencyOverride) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO emergency_overrides (`+overrideColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		uuid.UUID(o.ID), uuid.UUID(o.WardID), o.Justification, string(o.Status), nullUUID(uuid.UUID(o.GrantedBy)),
		o.Duration.Milliseconds(), o.RequestedAt, o.GrantedAt, o.RevokedAt)
	if err != nil {
		return fmt.Errorf("insert override: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrAlreadyExists
	}
	return nil
}

func (s *Store) UpdateOverride(ctx context.Context, o *policymodels.EmergencyOverride) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE emergency_overrides
		SET status = $2, granted_by = $3, duration_ms = $4, granted_at = $5, revoked_at = $6
		WHERE id = $1`,
		uuid.UUID(o.ID), string(o.Status), nullUUID(uuid.UUID(o.GrantedBy)), o.Duration.Milliseconds(), o.GrantedAt, o.RevokedAt)
	if err != nil {
		return fmt.Errorf("update override: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) GetOverride(ctx context.Context, oid id.OverrideID) (*policymodels.EmergencyOverride, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+overrideColumns+` FROM emergency_overrides WHERE id = $1`, uuid.UUID(oid))
	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get override: %w", err)
	}
	return o, nil
}

func (s *Store) ListOverrides(ctx context.Context, ward id.ParticipantID) ([]*policymodels.EmergencyOverride, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+overrideColumns+` FROM emergency_overrides
		WHERE ward_id = $1
		ORDER BY requested_at DESC, id`, uuid.UUID(ward))
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()
	var out []*policymodels.EmergencyOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
