package store

import (
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Records are appended to a slice and never replaced. Subscribers receive
// records via buffered channels (buffer size 100); if a subscriber's buffer
// is full, the record is dropped for that subscriber.
type MemoryStore struct {
	mu          sync.RWMutex
	records     []OutcomeRecord
	subscribers map[chan OutcomeRecord]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscribers: make(map[chan OutcomeRecord]struct{}),
	}
}

// Append stores an [OutcomeRecord] and notifies all subscribers.
func (m *MemoryStore) Append(record OutcomeRecord) {
	m.mu.Lock()
	m.records = append(m.records, record)
	m.mu.Unlock()

	m.notifySubscribers(record)
}

// GetAll returns a snapshot of all records in append order.
func (m *MemoryStore) GetAll() []OutcomeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]OutcomeRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Subscribe creates a new subscription and returns a channel for receiving
// records appended from now on.
func (m *MemoryStore) Subscribe() <-chan OutcomeRecord {
	ch := make(chan OutcomeRecord, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan OutcomeRecord) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the record to all active subscribers without
// blocking.
func (m *MemoryStore) notifySubscribers(record OutcomeRecord) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- record:
		default:
			// subscriber is slow, drop the record
		}
	}
}
