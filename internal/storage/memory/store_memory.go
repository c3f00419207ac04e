// Package memory is a single-process store guarded by one mutex. It backs tests and
// zero-infrastructure runs.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	approvalmodels "chaperone/internal/approval/models"
	"chaperone/internal/domain"
	policymodels "chaperone/internal/policy/models"
	"chaperone/internal/storage"
	id "chaperone/pkg/domain"
	"chaperone/pkg/platform/sentinel"
)

type Store struct {
	mu sync.RWMutex

	participants  map[id.ParticipantID]*domain.Participant
	conversations map[id.ConversationID]*domain.Conversation
	byMatch       map[id.ApprovalID]id.ConversationID
	messages      map[id.MessageID]*domain.Message
	threads       map[id.ConversationID][]id.MessageID
	requests      map[id.ApprovalID]*approvalmodels.ApprovalRequest
	policies      map[id.ParticipantID]*policymodels.PermissionPolicy
	overrides     map[id.OverrideID]*policymodels.EmergencyOverride
}

func New() *Store {
	return &Store{
		participants:  make(map[id.ParticipantID]*domain.Participant),
		conversations: make(map[id.ConversationID]*domain.Conversation),
		byMatch:       make(map[id.ApprovalID]id.ConversationID),
		messages:      make(map[id.MessageID]*domain.Message),
		threads:       make(map[id.ConversationID][]id.MessageID),
		requests:      make(map[id.ApprovalID]*approvalmodels.ApprovalRequest),
		policies:      make(map[id.ParticipantID]*policymodels.PermissionPolicy),
		overrides:     make(map[id.OverrideID]*policymodels.EmergencyOverride),
	}
}

func (s *Store) SaveParticipant(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.Wards = slices.Clone(p.Wards)
	s.participants[p.ID] = &cp
	return nil
}

func (s *Store) GetParticipant(_ context.Context, pid id.ParticipantID) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[pid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	cp.Wards = slices.Clone(p.Wards)
	return &cp, nil
}

// GuardiansOf lists guardians linked to ward, oldest link first.
func (s *Store) GuardiansOf(_ context.Context, ward id.ParticipantID) ([]id.ParticipantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []*domain.Participant
	for _, p := range s.participants {
		if p.Guards(ward) {
			found = append(found, p)
		}
	}
	slices.SortFunc(found, func(a, b *domain.Participant) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	out := make([]id.ParticipantID, len(found))
	for i, p := range found {
		out[i] = p.ID
	}
	return out, nil
}

// CreateConversation is idempotent per originating match request: a second call with the same
// MatchRequestID returns the first conversation and created=false.
func (s *Store) CreateConversation(_ context.Context, c *domain.Conversation) (*domain.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !c.MatchRequestID.IsNil() {
		if existing, ok := s.byMatch[c.MatchRequestID]; ok {
			return cloneConversation(s.conversations[existing]), false, nil
		}
	}
	if _, ok := s.conversations[c.ID]; ok {
		return nil, false, sentinel.ErrAlreadyExists
	}
	s.conversations[c.ID] = cloneConversation(c)
	if !c.MatchRequestID.IsNil() {
		s.byMatch[c.MatchRequestID] = c.ID
	}
	return cloneConversation(c), true, nil
}

func (s *Store) GetConversation(_ context.Context, cid id.ConversationID) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[cid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneConversation(c), nil
}

func (s *Store) ListConversations(_ context.Context, participant id.ParticipantID) ([]*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Conversation
	for _, c := range s.conversations {
		if c.Has(participant) {
			out = append(out, cloneConversation(c))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Conversation) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// SetConversationStatus applies a directive. Setting the current status is a no-op and a
// terminated conversation never changes again.
func (s *Store) SetConversationStatus(_ context.Context, cid id.ConversationID, status domain.ConversationStatus, now time.Time) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[cid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if c.Status == status {
		return cloneConversation(c), nil
	}
	if c.Status == domain.ConversationTerminated {
		return nil, storage.ErrConversationTerminated
	}
	if !c.Status.CanTransitionTo(status) {
		return nil, sentinel.ErrInvalidState
	}
	c.Status = status
	c.UpdatedAt = now
	return cloneConversation(c), nil
}

// AppendMessage assigns the next sequence number and stores the message, plus the review
// request when one is given, in one step.
func (s *Store) AppendMessage(_ context.Context, msg *domain.Message, review *approvalmodels.ApprovalRequest, opts storage.AppendOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[msg.ConversationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !opts.Admits(c.Status) {
		return storage.StatusError(c.Status)
	}
	if _, dup := s.messages[msg.ID]; dup {
		return sentinel.ErrAlreadyExists
	}
	if review != nil {
		if _, dup := s.requests[review.ID]; dup {
			return sentinel.ErrAlreadyExists
		}
		if review.Version == 0 {
			review.Version = 1
		}
		s.requests[review.ID] = review.Clone()
	}
	c.LastSequence++
	c.UpdatedAt = msg.CreatedAt
	msg.Sequence = c.LastSequence
	cp := *msg
	s.messages[msg.ID] = &cp
	s.threads[msg.ConversationID] = append(s.threads[msg.ConversationID], msg.ID)
	return nil
}

func (s *Store) GetMessage(_ context.Context, mid id.MessageID) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[mid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// ListMessages returns up to limit messages with sequence greater than afterSeq, ascending.
func (s *Store) ListMessages(_ context.Context, cid id.ConversationID, afterSeq int64, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[cid]; !ok {
		return nil, sentinel.ErrNotFound
	}
	var out []*domain.Message
	for _, mid := range s.threads[cid] {
		m := s.messages[mid]
		if m.Sequence <= afterSeq {
			continue
		}
		cp := *m
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// AdvanceDeliveryStatus moves every message up to uptoSeq that recipient did not send to status,
// skipping those already at or past it. It returns the messages that changed.
func (s *Store) AdvanceDeliveryStatus(_ context.Context, cid id.ConversationID, recipient id.ParticipantID, uptoSeq int64, status domain.DeliveryStatus) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[cid]; !ok {
		return nil, sentinel.ErrNotFound
	}
	var changed []*domain.Message
	for _, mid := range s.threads[cid] {
		m := s.messages[mid]
		if m.Sequence > uptoSeq {
			break
		}
		if m.SenderID == recipient {
			continue
		}
		if m.AdvanceDelivery(status) {
			cp := *m
			changed = append(changed, &cp)
		}
	}
	return changed, nil
}

// ResolveReview closes a message's review once; later calls return sentinel.ErrAlreadyExists.
func (s *Store) ResolveReview(_ context.Context, mid id.MessageID, annotation domain.Annotation, by id.ParticipantID, at time.Time) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[mid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if m.ReviewResolvedAt != nil || m.Annotation != domain.AnnotationNone {
		return nil, sentinel.ErrAlreadyExists
	}
	m.ResolveReview(annotation, by, at)
	cp := *m
	return &cp, nil
}

func (s *Store) CreateRequest(_ context.Context, req *approvalmodels.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	if req.Version == 0 {
		req.Version = 1
	}
	s.requests[req.ID] = req.Clone()
	return nil
}

func (s *Store) GetRequest(_ context.Context, rid id.ApprovalID) (*approvalmodels.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[rid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// UpdateRequest replaces the request when its stored version equals expected, then bumps
// req.Version. A stale expected version yields sentinel.ErrConflict.
func (s *Store) UpdateRequest(_ context.Context, req *approvalmodels.ApprovalRequest, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[req.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.Version != expected {
		return sentinel.ErrConflict
	}
	req.Version = expected + 1
	s.requests[req.ID] = req.Clone()
	return nil
}

// ListPendingFor returns open requests still waiting on approver's decision, oldest first.
func (s *Store) ListPendingFor(_ context.Context, approver id.ParticipantID) ([]*approvalmodels.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*approvalmodels.ApprovalRequest
	for _, r := range s.requests {
		if r.Status.IsTerminal() {
			continue
		}
		if d, ok := r.Decisions[approver]; ok && d.Decision == approvalmodels.DecisionPending {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *approvalmodels.ApprovalRequest) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// FindOpenBySubject returns the requester's unresolved request for the subject key.
func (s *Store) FindOpenBySubject(_ context.Context, requester id.ParticipantID, key string) (*approvalmodels.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.RequesterID == requester && !r.Status.IsTerminal() && r.Subject.Key() == key {
			return r.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Store) GetPolicy(_ context.Context, ward id.ParticipantID) (*policymodels.PermissionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[ward]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clonePolicy(p), nil
}

func (s *Store) PutPolicy(_ context.Context, p *policymodels.PermissionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.WardID] = clonePolicy(p)
	return nil
}

func (s *Store) CreateOverride(_ context.Context, o *policymodels.EmergencyOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overrides[o.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	cp := *o
	s.overrides[o.ID] = &cp
	return nil
}

func (s *Store) UpdateOverride(_ context.Context, o *policymodels.EmergencyOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overrides[o.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *o
	s.overrides[o.ID] = &cp
	return nil
}

func (s *Store) GetOverride(_ context.Context, oid id.OverrideID) (*policymodels.EmergencyOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[oid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// ListOverrides returns the ward's overrides, newest first.
func (s *Store) ListOverrides(_ context.Context, ward id.ParticipantID) ([]*policymodels.EmergencyOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*policymodels.EmergencyOverride
	for _, o := range s.overrides {
		if o.WardID == ward {
			cp := *o
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *policymodels.EmergencyOverride) int { return b.RequestedAt.Compare(a.RequestedAt) })
	return out, nil
}

func cloneConversation(c *domain.Conversation) *domain.Conversation {
	cp := *c
	cp.Conditions = slices.Clone(c.Conditions)
	return &cp
}

func clonePolicy(p *policymodels.PermissionPolicy) *policymodels.PermissionPolicy {
	cp := *p
	cp.Windows = slices.Clone(p.Windows)
	for i := range cp.Windows {
		cp.Windows[i].Days = slices.Clone(p.Windows[i].Days)
	}
	cp.Locations = slices.Clone(p.Locations)
	cp.Guardians = slices.Clone(p.Guardians)
	return &cp
}
