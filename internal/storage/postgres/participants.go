package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chaperone/internal/domain"
	id "chaperone/pkg/domain"
	"chaperone/pkg/platform/sentinel"
)

func (s *Store) SaveParticipant(ctx context.Context, p *domain.Participant) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		_, err := s.q(ctx).ExecContext(ctx, `
			INSERT INTO participants (id, role, display_name, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, display_name = EXCLUDED.display_name`,
			uuid.UUID(p.ID), string(p.Role), p.DisplayName, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert participant: %w", err)
		}
		if _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM guardian_links WHERE guardian_id = $1`, uuid.UUID(p.ID)); err != nil {
			return fmt.Errorf("clear guardian links: %w", err)
		}
		for _, ward := range p.Wards {
			if _, err := s.q(ctx).ExecContext(ctx, `
				INSERT INTO guardian_links (guardian_id, ward_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, uuid.UUID(p.ID), uuid.UUID(ward)); err != nil {
				return fmt.Errorf("insert guardian link: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) GetParticipant(ctx context.Context, pid id.ParticipantID) (*domain.Participant, error) {
	p := &domain.Participant{ID: pid}
	var role string
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT role, display_name, created_at FROM participants WHERE id = $1`, uuid.UUID(pid),
	).Scan(&role, &p.DisplayName, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	p.Role = id.Role(role)

	rows, err := s.q(ctx).QueryContext(ctx, `SELECT ward_id FROM guardian_links WHERE guardian_id = $1 ORDER BY ward_id`, uuid.UUID(pid))
	if err != nil {
		return nil, fmt.Errorf("list wards: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ward uuid.UUID
		if err := rows.Scan(&ward); err != nil {
			return nil, fmt.Errorf("scan ward: %w", err)
		}
		p.Wards = append(p.Wards, id.ParticipantID(ward))
	}
	return p, rows.Err()
}

func (s *Store) GuardiansOf(ctx context.Context, ward id.ParticipantID) ([]id.ParticipantID, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT p.id FROM guardian_links l
		JOIN participants p ON p.id = l.guardian_id
		WHERE l.ward_id = $1 AND p.role = 'guardian'
		ORDER BY p.created_at, p.id::text`, uuid.UUID(ward))
	if err != nil {
		return nil, fmt.Errorf("list guardians: %w", err)
	}
	defer rows.Close()
	var out []id.ParticipantID
	for rows.Next() {
		var g uuid.UUID
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan guardian: %w", err)
		}
		out = append(out, id.ParticipantID(g))
	}
	return out, rows.Err()
}
