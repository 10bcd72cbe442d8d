package gormstore

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store"
)

// signalBuffer bounds pending refresh signals per subscription. Signals over
// the bound coalesce into the newest snapshot, which is safe because every
// delivery re-queries current state.
const signalBuffer = 64

type subscription struct {
	token     string
	query     store.Query
	fn        func(batch []store.Record, err error)
	signals   chan struct{}
	done      chan struct{}
	cancelled atomic.Bool
}

// notifier owns the subscription set and the per-subscription delivery
// goroutines. snapshot re-runs a query against committed state.
type notifier struct {
	mu       sync.Mutex
	subs     map[string]*subscription
	snapshot func(q store.Query) ([]store.Record, error)
	closed   bool
}

func newNotifier(snapshot func(q store.Query) ([]store.Record, error)) *notifier {
	return &notifier{
		subs:     map[string]*subscription{},
		snapshot: snapshot,
	}
}

func (n *notifier) subscribe(q store.Query, fn func(batch []store.Record, err error)) string {
	sub := &subscription{
		token:   uuid.NewString(),
		query:   q,
		fn:      fn,
		signals: make(chan struct{}, signalBuffer),
		done:    make(chan struct{}),
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return sub.token
	}
	n.subs[sub.token] = sub
	n.mu.Unlock()

	go n.deliver(sub)

	// Initial snapshot so the caller starts from current state.
	sub.signals <- struct{}{}

	return sub.token
}

func (n *notifier) unsubscribe(token string) {
	n.mu.Lock()
	sub, ok := n.subs[token]
	if ok {
		delete(n.subs, token)
	}
	n.mu.Unlock()

	if ok {
		sub.cancelled.Store(true)
		close(sub.done)
	}
}

func (n *notifier) collectionChanged(collection string) {
	n.mu.Lock()
	targets := make([]*subscription, 0, len(n.subs))
	for _, sub := range n.subs {
		if sub.query.Collection == collection {
			targets = append(targets, sub)
		}
	}
	n.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.signals <- struct{}{}:
		default:
			// Buffer full: the pending signals already force a refresh
			// that will observe this change.
		}
	}
}

// deliver runs on a dedicated goroutine per subscription. Callbacks execute
// here, never under the notifier lock, so a callback may unsubscribe (itself
// or another subscription) without deadlocking.
func (n *notifier) deliver(sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.signals:
			if sub.cancelled.Load() {
				return
			}
			batch, err := n.snapshot(sub.query)
			// Re-check after the query: an unsubscribe that raced the
			// refresh drops the batch instead of delivering late.
			if sub.cancelled.Load() {
				return
			}
			sub.fn(batch, err)
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	subs := make([]*subscription, 0, len(n.subs))
	for _, sub := range n.subs {
		subs = append(subs, sub)
	}
	n.subs = map[string]*subscription{}
	n.mu.Unlock()

	for _, sub := range subs {
		sub.cancelled.Store(true)
		close(sub.done)
	}
}
