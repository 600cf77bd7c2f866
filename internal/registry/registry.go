package registry

import "sync"

// SubscriptionSet is the mutable set of chats receiving broadcasts.
// Membership changes are the only mutation; iteration order is unspecified.
type SubscriptionSet struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

// New constructs an empty subscription set.
func New() *SubscriptionSet {
	return &SubscriptionSet{members: make(map[string]struct{})}
}

// Add subscribes the recipient. Reports whether membership changed, so the
// caller can pick between the "subscribed" and "already subscribed" acks.
func (s *SubscriptionSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; ok {
		return false
	}
	s.members[id] = struct{}{}
	return true
}

// Remove unsubscribes the recipient. Reports whether membership changed.
func (s *SubscriptionSet) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return false
	}
	delete(s.members, id)
	return true
}

// Has reports whether the recipient is subscribed.
func (s *SubscriptionSet) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[id]
	return ok
}

// Len returns the number of subscribed recipients.
func (s *SubscriptionSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// List returns a snapshot of the current members.
func (s *SubscriptionSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	return out
}
