// Package changefeed fans record changes out to in-process subscribers.
package changefeed

import (
	"sync"

	"github.com/AlibekovAA/safecheck/internal/observability/metrics"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
)

const (
	SourceLocal  = "local"
	SourceNotify = "notify"
)

type ChangeFunc func(user userdomain.User)

type subscriber struct {
	id       uint64
	onChange ChangeFunc
}

type topic struct {
	subscribers map[uint64]*subscriber
	lastVersion int64
}

// Broker delivers a record snapshot to every subscriber of that record. A
// snapshot whose version is not newer than the last one delivered for the
// record is dropped, so local publishes and database notifications for the
// same write reach subscribers once.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]*topic
	nextID uint64
}

func NewBroker() *Broker {
	return &Broker{topics: make(map[string]*topic)}
}

// Subscribe registers onChange for recordID. The returned function removes
// the subscription and is safe to call more than once.
func (b *Broker) Subscribe(recordID string, onChange ChangeFunc) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscriber{id: b.nextID, onChange: onChange}
	t, ok := b.topics[recordID]
	if !ok {
		t = &topic{subscribers: make(map[uint64]*subscriber)}
		b.topics[recordID] = t
	}
	t.subscribers[sub.id] = sub
	b.mu.Unlock()

	metrics.StatusSubscriptionsActive.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if t, ok := b.topics[recordID]; ok {
				delete(t.subscribers, sub.id)
				if len(t.subscribers) == 0 {
					delete(b.topics, recordID)
				}
			}
			b.mu.Unlock()
			metrics.StatusSubscriptionsActive.Dec()
		})
	}
}

// Publish delivers user to the subscribers of user.ID and reports whether it
// was delivered. Callbacks run on the caller's goroutine and must not block.
func (b *Broker) Publish(user userdomain.User, source string) bool {
	recordID := string(user.ID)

	b.mu.Lock()
	t, ok := b.topics[recordID]
	if !ok {
		b.mu.Unlock()
		return false
	}
	if user.Version <= t.lastVersion {
		b.mu.Unlock()
		metrics.ChangeFeedStaleDropped.Inc()
		return false
	}
	t.lastVersion = user.Version
	subs := make([]ChangeFunc, 0, len(t.subscribers))
	for _, s := range t.subscribers {
		subs = append(subs, s.onChange)
	}
	b.mu.Unlock()

	metrics.ChangeFeedEventsTotal.WithLabelValues(source).Inc()
	for _, fn := range subs {
		fn(user)
	}
	return true
}

func (b *Broker) HasSubscribers(recordID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.topics[recordID]
	return ok
}

// LastVersion returns the newest version delivered for recordID, or zero.
func (b *Broker) LastVersion(recordID string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if t, ok := b.topics[recordID]; ok {
		return t.lastVersion
	}
	return 0
}

func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, t := range b.topics {
		n += len(t.subscribers)
	}
	return n
}
