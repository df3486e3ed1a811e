// Package store holds cached server-state entries addressed by key.
//
// The store is the single source of truth for entries. It carries no
// business logic: callers patch entries atomically per key and the store
// notifies subscribers when an entry's visible state (value, status, error)
// changes. Listeners always run outside the store lock, so they may
// unsubscribe or read the store freely.
package store

import (
	"sync"
	"time"

	"github.com/jonwraymond/querysync/key"
	"github.com/jonwraymond/querysync/policy"
)

// Listener receives a snapshot of an entry after a visible change.
type Listener func(Entry)

// Config configures a Store.
type Config struct {
	// Policies resolves the staleness policy of new entries.
	// Default: a registry falling back to policy.Default()
	Policies *policy.Registry

	// Clock returns the current time.
	// Default: time.Now
	Clock func() time.Time
}

// Store maps keys to entries.
//
// Contract:
// - Concurrency: safe for concurrent use; each Upsert is atomic per key.
// - Listeners: invoked synchronously after the change, outside the lock.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*record
	policies *policy.Registry
	now      func() time.Time
	seq      uint64
	nextSub  uint64
}

type record struct {
	entry     Entry
	listeners map[uint64]Listener
}

// Stats summarizes the store contents.
type Stats struct {
	Entries    int
	Subscribed int
	InFlight   int
	ByStatus   map[Status]int
}

// New creates an empty store.
func New(cfg Config) *Store {
	if cfg.Policies == nil {
		cfg.Policies = policy.NewRegistry(policy.Default())
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Store{
		entries:  make(map[string]*record),
		policies: cfg.Policies,
		now:      cfg.Clock,
	}
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Get returns a snapshot of the entry for k.
func (s *Store) Get(k key.Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[k.String()]
	if !ok {
		return Entry{}, false
	}
	return rec.entry, true
}

// Upsert applies patch to the entry for k, creating the entry if needed,
// and returns the resulting snapshot. patch must not block or call back
// into the store.
func (s *Store) Upsert(k key.Key, patch func(*Entry)) Entry {
	e, _ := s.UpsertIf(k, nil, patch)
	return e
}

// UpsertIf is Upsert guarded by cond. cond runs under the store lock before
// the entry is looked up or created; when it returns false nothing changes
// and UpsertIf reports false. A nil cond always holds.
func (s *Store) UpsertIf(k key.Key, cond func() bool, patch func(*Entry)) (Entry, bool) {
	s.mu.Lock()
	if cond != nil && !cond() {
		s.mu.Unlock()
		return Entry{}, false
	}
	rec := s.recordLocked(k)
	before := rec.entry
	if patch != nil {
		patch(&rec.entry)
	}
	s.seq++
	rec.entry.Seq = s.seq
	after := rec.entry

	var listeners []Listener
	if before.visiblyDiffers(after) {
		listeners = collect(rec)
	}
	s.mu.Unlock()

	notify(listeners, after)
	return after, true
}

// Update applies patch to an existing entry. Unlike Upsert it never
// creates one; it reports false when k has no entry.
func (s *Store) Update(k key.Key, patch func(*Entry)) (Entry, bool) {
	s.mu.Lock()
	rec, ok := s.entries[k.String()]
	if !ok {
		s.mu.Unlock()
		return Entry{}, false
	}
	before := rec.entry
	patch(&rec.entry)
	s.seq++
	rec.entry.Seq = s.seq
	after := rec.entry

	var listeners []Listener
	if before.visiblyDiffers(after) {
		listeners = collect(rec)
	}
	s.mu.Unlock()

	notify(listeners, after)
	return after, true
}

// Remove deletes the entry for k. It reports whether an entry existed.
func (s *Store) Remove(k key.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := k.String()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// FindAllMatching returns the keys of every entry accepted by pred.
// pred runs under the store lock and must not call back into the store.
func (s *Store) FindAllMatching(pred func(Entry) bool) []key.Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []key.Key
	for _, rec := range s.entries {
		if pred(rec.entry) {
			keys = append(keys, rec.entry.Key)
		}
	}
	return keys
}

// Match returns the keys of entries under any of prefixes.
func (s *Store) Match(prefixes ...key.Key) []key.Key {
	return s.FindAllMatching(func(e Entry) bool {
		return key.MatchAny(e.Key, prefixes...)
	})
}

// Subscribe attaches l to the entry for k, creating the entry if needed.
// The returned function releases the subscription; it is idempotent and
// safe to call from inside a listener.
func (s *Store) Subscribe(k key.Key, l Listener) func() {
	s.mu.Lock()
	rec := s.recordLocked(k)
	s.nextSub++
	id := s.nextSub
	rec.listeners[id] = l
	rec.entry.Subscribers++
	rec.entry.UnusedSince = time.Time{}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			if _, ok := rec.listeners[id]; !ok {
				return
			}
			delete(rec.listeners, id)
			// The record may have been cleared; only live records count.
			if s.entries[k.String()] != rec {
				return
			}
			rec.entry.Subscribers--
			if rec.entry.Subscribers == 0 {
				rec.entry.UnusedSince = s.now()
			}
		})
	}
}

// Sweep evicts entries that have had no subscribers for longer than their
// policy's grace period and have no fetch in flight. It returns the
// evicted keys.
func (s *Store) Sweep() []key.Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var evicted []key.Key
	for id, rec := range s.entries {
		e := rec.entry
		if e.Subscribers > 0 || e.InFlight() || e.UnusedSince.IsZero() {
			continue
		}
		if now.Sub(e.UnusedSince) >= e.Policy.Grace() {
			delete(s.entries, id)
			evicted = append(evicted, e.Key)
		}
	}
	return evicted
}

// Clear drops the data of every entry. Entries without subscribers are
// removed. Subscribed entries are reset to idle in place and keep their
// listeners, so later fetches of the key still reach them; their
// subscribers receive the idle snapshot. It returns the number of entries
// cleared.
func (s *Store) Clear() int {
	s.mu.Lock()
	type pending struct {
		listeners []Listener
		entry     Entry
	}
	var notifications []pending
	n := len(s.entries)
	now := s.now()
	kept := make(map[string]*record)
	for id, rec := range s.entries {
		if len(rec.listeners) == 0 {
			continue
		}
		s.seq++
		old := rec.entry
		rec.entry = Entry{
			Key:         old.Key,
			Status:      StatusIdle,
			Subscribers: old.Subscribers,
			LastRequest: old.LastRequest,
			Policy:      old.Policy,
			CreatedAt:   now,
			Version:     old.Version + 1,
			Seq:         s.seq,
		}
		kept[id] = rec
		notifications = append(notifications, pending{
			listeners: collect(rec),
			entry:     rec.entry,
		})
	}
	s.entries = kept
	s.mu.Unlock()

	for _, p := range notifications {
		notify(p.listeners, p.entry)
	}
	return n
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns snapshots of all entries in no particular order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, rec := range s.entries {
		out = append(out, rec.entry)
	}
	return out
}

// Stats returns a summary of the store contents.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{ByStatus: make(map[Status]int, 4)}
	for _, rec := range s.entries {
		st.Entries++
		st.ByStatus[rec.entry.Status]++
		if rec.entry.Subscribers > 0 {
			st.Subscribed++
		}
		if rec.entry.InFlight() {
			st.InFlight++
		}
	}
	return st
}

func (s *Store) recordLocked(k key.Key) *record {
	id := k.String()
	if rec, ok := s.entries[id]; ok {
		return rec
	}
	p, _ := s.policies.Resolve(k.Resource())
	now := s.now()
	rec := &record{
		entry: Entry{
			Key:         k,
			Status:      StatusIdle,
			Policy:      p,
			CreatedAt:   now,
			UnusedSince: now,
		},
		listeners: make(map[uint64]Listener),
	}
	s.entries[id] = rec
	return rec
}

func collect(rec *record) []Listener {
	if len(rec.listeners) == 0 {
		return nil
	}
	out := make([]Listener, 0, len(rec.listeners))
	for _, l := range rec.listeners {
		out = append(out, l)
	}
	return out
}

func notify(listeners []Listener, e Entry) {
	for _, l := range listeners {
		l(e)
	}
}
