package usage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "chaperone/pkg/domain"
)

type store interface {
	Record(ctx context.Context, ward id.ParticipantID, day string, minute int) (int, error)
	Used(ctx context.Context, ward id.ParticipantID, day string, minute int) (int, bool, error)
}

func exerciseStore(t *testing.T, s store) {
	ctx := context.Background()
	ward, other := id.NewParticipantID(), id.NewParticipantID()

	used, counted, err := s.Used(ctx, ward, "2026-03-02", 600)
	require.NoError(t, err)
	assert.Zero(t, used)
	assert.False(t, counted)

	n, err := s.Record(ctx, ward, "2026-03-02", 600)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Record(ctx, ward, "2026-03-02", 600)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a minute counts once")
	n, err = s.Record(ctx, ward, "2026-03-02", 601)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	used, counted, err = s.Used(ctx, ward, "2026-03-02", 601)
	require.NoError(t, err)
	assert.Equal(t, 2, used)
	assert.True(t, counted)

	used, _, err = s.Used(ctx, ward, "2026-03-03", 600)
	require.NoError(t, err)
	assert.Zero(t, used, "days are separate")

	used, _, err = s.Used(ctx, other, "2026-03-02", 600)
	require.NoError(t, err)
	assert.Zero(t, used, "wards are separate")
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}
