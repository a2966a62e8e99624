package aggregate

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrNotYetAvailable is returned by Store.Current until a snapshot holding
// data from at least one successful cycle has been published.
var ErrNotYetAvailable = errors.New("snapshot not yet available")

// Store publishes snapshots from a single writer to any number of readers.
// Readers never block the writer and never observe a partially built snapshot.
type Store struct {
	cur atomic.Pointer[Snapshot]

	mu   sync.Mutex
	subs map[uuid.UUID]chan struct{}
}

func NewStore() *Store {
	return &Store{subs: make(map[uuid.UUID]chan struct{})}
}

// Publish replaces the current snapshot and notifies subscribers.
func (s *Store) Publish(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.cur.Store(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Current returns the latest published snapshot.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.cur.Load()
	if snap == nil || !snap.Populated() {
		return nil, ErrNotYetAvailable
	}
	return snap, nil
}

// Latest returns the latest published snapshot even when it holds no data yet,
// or nil before the first publish.
func (s *Store) Latest() *Snapshot { return s.cur.Load() }

// Version is the version of the latest published snapshot, 0 before the first.
func (s *Store) Version() uint64 {
	if snap := s.cur.Load(); snap != nil {
		return snap.Version()
	}
	return 0
}

// Subscribe returns a channel that receives a value after each publish.
// Notifications coalesce: a slow reader sees at most one pending signal and
// should re-read Current. cancel closes the channel.
func (s *Store) Subscribe() (id uuid.UUID, ch <-chan struct{}, cancel func()) {
	id = uuid.New()
	c := make(chan struct{}, 1)

	s.mu.Lock()
	s.subs[id] = c
	s.mu.Unlock()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(c)
		})
	}
	return id, c, cancel
}

// Subscribers is the number of active subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
