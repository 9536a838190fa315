package roster

import "sync"

// PrintedSet remembers ids that were already auto-printed. It only grows.
type PrintedSet struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

func NewPrintedSet() *PrintedSet {
	return &PrintedSet{ids: make(map[int64]struct{})}
}

// MarkPrinted records id and reports whether it was new.
func (s *PrintedSet) MarkPrinted(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.ids[id]; seen {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *PrintedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
