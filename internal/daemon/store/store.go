package store

import (
	"sort"
	"sync"

	"github.com/wardentools/warden/pkg/runs"
)

// Store is the in-memory run registry for the daemon.
// It is thread-safe and supports pub/sub for real-time updates. Mutation
// goes through ApplyUpdate only; the engine is the single writer, readers
// get cloned records so a served snapshot can never be mutated under a
// client.
type Store struct {
	mu          sync.RWMutex
	state       *State
	subscribers map[chan Update]struct{}
}

// New creates a new Store instance.
func New() *Store {
	return &Store{
		state: &State{
			Runs: make(map[string]*runs.Run),
		},
		subscribers: make(map[chan Update]struct{}),
	}
}

// GetRuns returns clones of all runs, sorted by ID (chronological by the
// run-id convention).
func (s *Store) GetRuns() []*runs.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*runs.Run, 0, len(s.state.Runs))
	for _, r := range s.state.Runs {
		result = append(result, r.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetRun returns a clone of one run, or nil when unknown.
func (s *Store) GetRun(id string) *runs.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Runs[id].Clone()
}

// ApplyUpdate modifies the state and notifies subscribers.
func (s *Store) ApplyUpdate(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch u.Type {
	case UpdateRunSet:
		if set, ok := u.Payload.(map[string]*runs.Run); ok {
			s.state.Runs = set
		}
	case UpdateRun:
		if r, ok := u.Payload.(*runs.Run); ok {
			s.state.Runs[r.ID] = r
		}
	case UpdateRunRemoved:
		if id, ok := u.Payload.(string); ok {
			delete(s.state.Runs, id)
		}
	}

	// Broadcast to subscribers
	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			// Non-blocking send to prevent slow clients from stalling the daemon
		}
	}
}

// Subscribe creates a new subscription channel for state updates.
func (s *Store) Subscribe() chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Update, 100) // Buffered
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, ch)
	close(ch)
}

// BroadcastConfigReload sends a config reload notification to all subscribers.
func (s *Store) BroadcastConfigReload(file string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	update := Update{
		Type:    UpdateConfigReload,
		Source:  "config",
		Payload: file,
	}
	for ch := range s.subscribers {
		select {
		case ch <- update:
		default:
		}
	}
}
