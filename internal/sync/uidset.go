package sync

import gosync "sync"

// UIDSet records the UIDs a session has already handed to the processor.
type UIDSet struct {
	mu   gosync.Mutex
	uids map[uint32]struct{}
	max  uint32
}

// NewUIDSet returns an empty set.
func NewUIDSet() *UIDSet {
	return &UIDSet{uids: make(map[uint32]struct{})}
}

// Add marks uid as handled.
func (s *UIDSet) Add(uid uint32) {
	s.mu.Lock()
	s.uids[uid] = struct{}{}
	if uid > s.max {
		s.max = uid
	}
	s.mu.Unlock()
}

// Has reports whether uid was handled.
func (s *UIDSet) Has(uid uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.uids[uid]
	return ok
}

// Max returns the highest handled UID, or 0 for an empty set.
func (s *UIDSet) Max() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max
}
