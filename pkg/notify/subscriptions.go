package notify

import (
	"sort"
	"sync"
)

// Subscriptions records which variables each connection observes.
type Subscriptions struct {
	mu     sync.RWMutex
	byConn map[string]map[string]struct{}
}

// NewSubscriptions creates an empty subscription table.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{byConn: make(map[string]map[string]struct{})}
}

// Add subscribes connID to names.
func (s *Subscriptions) Add(connID string, names ...string) {
	if len(names) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.byConn[connID]
	if !ok {
		set = make(map[string]struct{}, len(names))
		s.byConn[connID] = set
	}
	for _, n := range names {
		set[n] = struct{}{}
	}
}

// Remove unsubscribes connID from names. With no names every subscription
// of the connection is dropped.
func (s *Subscriptions) Remove(connID string, names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(names) == 0 {
		delete(s.byConn, connID)
		return
	}
	set := s.byConn[connID]
	for _, n := range names {
		delete(set, n)
	}
	if len(set) == 0 {
		delete(s.byConn, connID)
	}
}

// Drop forgets a closed connection.
func (s *Subscriptions) Drop(connID string) {
	s.Remove(connID)
}

// Variables returns the sorted names connID is subscribed to.
func (s *Subscriptions) Variables(connID string) []string {
	s.mu.RLock()
	set := s.byConn[connID]
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Subscribers returns the sorted connection IDs subscribed to name.
func (s *Subscriptions) Subscribers(name string) []string {
	s.mu.RLock()
	var out []string
	for connID, set := range s.byConn {
		if _, ok := set[name]; ok {
			out = append(out, connID)
		}
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Watched returns every name with at least one subscriber, sorted.
func (s *Subscriptions) Watched() []string {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, set := range s.byConn {
		for n := range set {
			seen[n] = struct{}{}
		}
	}
	s.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of connections with at least one subscription.
func (s *Subscriptions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byConn)
}
