package localstore

import "sync"

// Broker fans changes out to the subscribers of all views of one store.
type Broker struct {
	mu       sync.Mutex
	nextView uint64
	nextSub  uint64
	subs     map[uint64]subscriber
}

type subscriber struct {
	view uint64
	key  string
	fn   func(Change)
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]subscriber)}
}

// newView allocates an identity for a view of the store.
func (b *Broker) newView() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextView++
	return b.nextView
}

func (b *Broker) subscribe(view uint64, key string, fn func(Change)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	id := b.nextSub
	b.subs[id] = subscriber{view: view, key: key, fn: fn}
	return &subscription{broker: b, id: id}
}

// publish calls every subscriber of c.Key outside of from. Callbacks run
// without the lock held so they may read the store.
func (b *Broker) publish(from uint64, c Change) {
	b.mu.Lock()
	var fns []func(Change)
	for _, s := range b.subs {
		if s.view != from && s.key == c.Key {
			fns = append(fns, s.fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

type subscription struct {
	broker *Broker
	id     uint64
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		defer s.broker.mu.Unlock()
		delete(s.broker.subs, s.id)
	})
}
