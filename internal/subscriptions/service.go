package subscriptions

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mgiraldo-dev/canteen-backend/pkg/reconcile"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store"
)

// ChangeFunc receives one snapshot batch. Batches for a subscription arrive
// in store emission order on a dedicated goroutine.
type ChangeFunc func(batch []store.Record)

// ScriptFunc receives the edit script from the previous batch to the current
// one, plus the batch itself.
type ScriptFunc func(script reconcile.Script, batch []store.Record)

type ErrorFunc func(err error)

// Manager owns the mapping from caller-chosen subscription ids to live store
// subscriptions. Registering an id that is already live replaces the old
// subscription rather than stacking a second one.
type Manager interface {
	Subscribe(id string, q store.Query, onChange ChangeFunc, onError ErrorFunc) error
	// SubscribeDiff delivers a minimal edit script per batch instead of the
	// raw records, reconciled against the previous batch for the same id.
	SubscribeDiff(id string, q store.Query, onScript ScriptFunc, onError ErrorFunc) error
	// Unsubscribe cancels the id's subscription. Unknown ids are a no-op.
	// Safe to call from within the id's own onChange callback.
	Unsubscribe(id string)
	UnsubscribeAll()
	Active() []string
}

type handle struct {
	token     string
	cancelled atomic.Bool
}

type manager struct {
	store store.Client

	mu   sync.Mutex
	subs map[string]*handle
}

func NewManager(st store.Client) (Manager, error) {
	if st == nil {
		return nil, fmt.Errorf("store client required")
	}
	return &manager{store: st, subs: make(map[string]*handle)}, nil
}

func (m *manager) Subscribe(id string, q store.Query, onChange ChangeFunc, onError ErrorFunc) error {
	if id == "" {
		return fmt.Errorf("subscription id required")
	}
	if onChange == nil {
		return fmt.Errorf("onChange callback required")
	}

	h := &handle{}
	// The callback runs on the store's delivery goroutine, never under
	// m.mu, so Unsubscribe from inside it cannot deadlock.
	fn := func(batch []store.Record, err error) {
		if h.cancelled.Load() {
			return
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(batch)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.subs[id]; ok {
		old.cancelled.Store(true)
		m.store.Unsubscribe(old.token)
	}
	h.token = m.store.Subscribe(q, fn)
	m.subs[id] = h
	return nil
}

func (m *manager) SubscribeDiff(id string, q store.Query, onScript ScriptFunc, onError ErrorFunc) error {
	if onScript == nil {
		return fmt.Errorf("onScript callback required")
	}
	// Previous batch as (id, fingerprint) pairs. Only the delivery
	// goroutine touches it, so no lock.
	var last []reconcile.Entry
	onChange := func(batch []store.Record) {
		entries := reconcile.FromRecords(batch)
		script, err := reconcile.Diff(last, entries)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		last = entries
		onScript(script, batch)
	}
	return m.Subscribe(id, q, onChange, onError)
}

func (m *manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.subs[id]
	if !ok {
		return
	}
	h.cancelled.Store(true)
	m.store.Unsubscribe(h.token)
	delete(m.subs, id)
}

func (m *manager) UnsubscribeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, h := range m.subs {
		h.cancelled.Store(true)
		m.store.Unsubscribe(h.token)
		delete(m.subs, id)
	}
}

func (m *manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
