package repeater

import (
	"sync"
)

// ThreadTracker maps thread IDs to the sticky message currently posted there.
// Each thread is an independent slot.
type ThreadTracker struct {
	mu       sync.RWMutex
	messages map[string]string
}

func NewThreadTracker(initial map[string]string) *ThreadTracker {
	messages := make(map[string]string, len(initial))
	for threadID, messageID := range initial {
		if threadID != "" && messageID != "" {
			messages[threadID] = messageID
		}
	}
	return &ThreadTracker{messages: messages}
}

// Get returns the tracked message of a thread.
func (t *ThreadTracker) Get(threadID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.messages[threadID]
	return id, ok
}

// Set records messageID as the sticky of threadID; an empty messageID clears the slot.
func (t *ThreadTracker) Set(threadID, messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if messageID == "" {
		delete(t.messages, threadID)
		return
	}
	t.messages[threadID] = messageID
}

// Delete drops a thread and reports whether it was tracked.
func (t *ThreadTracker) Delete(threadID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.messages[threadID]
	delete(t.messages, threadID)
	return ok
}

func (t *ThreadTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Snapshot copies the map for persistence.
func (t *ThreadTracker) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.messages))
	for k, v := range t.messages {
		out[k] = v
	}
	return out
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	locks sync.Map // key -> *sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	val, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	return val.(*sync.Mutex)
}

// forget removes the lock for key if nobody holds it.
func (k *keyedMutex) forget(key string) {
	val, ok := k.locks.Load(key)
	if !ok {
		return
	}
	mu := val.(*sync.Mutex)
	if mu.TryLock() {
		k.locks.Delete(key)
		mu.Unlock()
	}
}
