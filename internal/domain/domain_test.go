package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

func TestConversationTransitions(t *testing.T) {
	now := time.Now()
	a, b := id.NewParticipantID(), id.NewParticipantID()

	_, err := NewConversation(a, a, id.ApprovalID{}, nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	c, err := NewConversation(a, b, id.NewApprovalID(), nil, now)
	require.NoError(t, err)
	assert.Equal(t, ConversationActive, c.Status)

	require.NoError(t, c.Transition(ConversationPaused, now))
	require.NoError(t, c.Transition(ConversationActive, now))
	require.NoError(t, c.Transition(ConversationTerminated, now))

	err = c.Transition(ConversationActive, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConversationTerminated))
	assert.True(t, c.IsTerminated())

	other, ok := c.Counterpart(a)
	assert.True(t, ok)
	assert.Equal(t, b, other)
	_, ok = c.Counterpart(id.NewParticipantID())
	assert.False(t, ok)
}

func TestDeliveryStatusIsMonotonic(t *testing.T) {
	m := &Message{DeliveryStatus: DeliveryQueued}

	assert.False(t, m.AdvanceDelivery(DeliveryRead), "a queued message cannot have been read")
	assert.Equal(t, DeliveryQueued, m.DeliveryStatus)
	assert.True(t, m.AdvanceDelivery(DeliverySent))
	assert.True(t, m.AdvanceDelivery(DeliveryDelivered))
	assert.True(t, m.AdvanceDelivery(DeliveryRead))
	assert.False(t, m.AdvanceDelivery(DeliveryRead), "repeat read is a no-op")
	assert.False(t, m.AdvanceDelivery(DeliveryDelivered), "read never reverts")
	assert.Equal(t, DeliveryRead, m.DeliveryStatus)
}

func TestPendingReviewClearsOnResolution(t *testing.T) {
	guardian := id.NewParticipantID()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	flagged := func() *Message {
		return &Message{Verdict: Verdict{Outcome: OutcomeFlagged}, ReviewID: id.NewApprovalID()}
	}

	approved := flagged()
	assert.True(t, approved.PendingReview())
	approved.ResolveReview(AnnotationNone, guardian, now)
	assert.False(t, approved.PendingReview())
	assert.Equal(t, AnnotationNone, approved.Annotation)

	rejected := flagged()
	rejected.ResolveReview(AnnotationRejectedByGuardian, guardian, now)
	assert.False(t, rejected.PendingReview())
	assert.Equal(t, guardian, rejected.AnnotatedBy)

	raw, err := json.Marshal(flagged())
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, true, body["pending_review"])
	assert.Equal(t, "flagged", body["verdict"].(map[string]any)["verdict"])

	raw, err = json.Marshal(approved)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, false, body["pending_review"])
	assert.NotEmpty(t, body["review_resolved_at"])
}

func TestVerdict(t *testing.T) {
	var zero Verdict
	assert.False(t, zero.SendEnabled(), "zero verdict fails closed")

	raw, err := json.Marshal(Verdict{Outcome: OutcomeFlagged, ReasonCode: "intimacy"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"verdict":"flagged","reason_code":"intimacy"}`, string(raw))

	var back Verdict
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.IsFlagged())
	assert.True(t, back.SendEnabled())

	_, err = ParseOutcome("maybe")
	assert.Error(t, err)
}
