package delivery

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

// numConversationShards spreads conversations over a fixed set of locks. Two conversations
// may share a shard; one conversation always maps to the same shard.
const numConversationShards = 128

const defaultLockTimeout = 5 * time.Second

// conversationLocks serializes commits per conversation. Each shard is a one-slot semaphore
// so a waiting commit can give up when its context ends.
type conversationLocks struct {
	once    sync.Once
	shards  [numConversationShards]chan struct{}
	timeout time.Duration
}

func (l *conversationLocks) init() {
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
}

// run executes fn while holding the shard of cid. When the caller set no deadline, the lock
// timeout bounds both the wait for the shard and fn.
func (l *conversationLocks) run(ctx context.Context, cid id.ConversationID, fn func(ctx context.Context) error) error {
	l.once.Do(l.init)
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "commit aborted: context cancelled")
	}
	timeout := l.timeout
	if timeout == 0 {
		timeout = defaultLockTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := l.shards[shardOf(cid)]
	select {
	case shard <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "commit aborted: conversation is busy")
	}
	defer func() { <-shard }()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "commit aborted: context cancelled")
	}
	return fn(ctx)
}

func shardOf(cid id.ConversationID) int {
	h := fnv.New32a()
	_, _ = h.Write(cid[:])
	return int(h.Sum32() % numConversationShards)
}
