package hub

import "sync"

type presenceUpdate func()

// presenceQueue runs updates for one user in the order they were queued.
// Different users drain concurrently; a user's drainer exits once their
// queue is empty.
type presenceQueue struct {
	mu      sync.Mutex
	pending map[string][]presenceUpdate
}

func newPresenceQueue() *presenceQueue {
	return &presenceQueue{pending: make(map[string][]presenceUpdate)}
}

// push reports whether the caller must start a drainer for userID.
func (q *presenceQueue) push(userID string, update presenceUpdate) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, draining := q.pending[userID]
	q.pending[userID] = append(q.pending[userID], update)
	return !draining
}

func (q *presenceQueue) pop(userID string) (presenceUpdate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	updates := q.pending[userID]
	if len(updates) == 0 {
		delete(q.pending, userID)
		return nil, false
	}
	q.pending[userID] = updates[1:]
	return updates[0], true
}

func (q *presenceQueue) drain(userID string) {
	for {
		update, ok := q.pop(userID)
		if !ok {
			return
		}
		update()
	}
}
