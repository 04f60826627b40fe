package state

import "sync"

// SeenSet is a bounded set of recently seen ids; the oldest ids are evicted first.
type SeenSet struct {
	mu    sync.Mutex
	max   int
	order []string
	set   map[string]struct{}
}

func NewSeenSet(max int) *SeenSet {
	if max <= 0 {
		max = 1000
	}
	return &SeenSet{
		max: max,
		set: make(map[string]struct{}, max),
	}
}

func (s *SeenSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[id]
	return ok
}

// Add records id and reports whether it was new. Empty ids are never recorded.
func (s *SeenSet) Add(id string) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.set[id]; ok {
		return false
	}

	s.set[id] = struct{}{}
	s.order = append(s.order, id)

	if len(s.order) > s.max {
		overflow := len(s.order) - s.max
		for _, old := range s.order[:overflow] {
			delete(s.set, old)
		}
		s.order = append([]string(nil), s.order[overflow:]...)
	}
	return true
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
