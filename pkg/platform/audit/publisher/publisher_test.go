package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "chaperone/pkg/domain"
	audit "chaperone/pkg/platform/audit"
	"chaperone/pkg/platform/audit/store/memory"
)

type failingStore struct{ memory.InMemoryStore }

func (f *failingStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	guardian := id.NewParticipantID()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		ActorID: guardian,
		Action:  string(audit.EventConversationPaused),
	}))

	events, err := pub.List(context.Background(), guardian)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	guardian := id.NewParticipantID()
	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{
			ActorID: guardian,
			Action:  string(audit.EventOverrideGranted),
		}))
	}
	pub.Close()

	events, err := store.ListByActor(context.Background(), guardian)
	require.NoError(t, err)
	assert.Len(t, events, 10)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
}

func TestPublisher_BufferFullNeverBlocks(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventEmergencyStop)})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_PreservesTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	guardian := id.NewParticipantID()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		ActorID:   guardian,
		Action:    string(audit.EventPolicyUpdated),
		Timestamp: at,
	}))

	events, err := pub.List(context.Background(), guardian)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, at, events[0].Timestamp)
}

func TestPublisher_StoreFailureIsSwallowed(t *testing.T) {
	pub := NewPublisher(&failingStore{})
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventConversationResumed)})
	assert.NoError(t, err)
}
