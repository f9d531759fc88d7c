package risk

import "github.com/google/uuid"

// policySet keeps the open policies of a risk. Removal swaps the last element
// into the freed slot, so batches taken from the tail stay stable while the
// caller removes what it processed.
type policySet struct {
	ids   []uuid.UUID
	index map[uuid.UUID]int
}

func newPolicySet() *policySet {
	return &policySet{index: make(map[uuid.UUID]int)}
}

func (s *policySet) add(id uuid.UUID) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = len(s.ids)
	s.ids = append(s.ids, id)
	return true
}

func (s *policySet) remove(id uuid.UUID) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	last := len(s.ids) - 1
	if i != last {
		moved := s.ids[last]
		s.ids[i] = moved
		s.index[moved] = i
	}
	s.ids = s.ids[:last]
	delete(s.index, id)
	return true
}

func (s *policySet) contains(id uuid.UUID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *policySet) len() int {
	return len(s.ids)
}

// tail returns up to n ids starting from the end; n == 0 means all.
func (s *policySet) tail(n int) []uuid.UUID {
	if n <= 0 || n > len(s.ids) {
		n = len(s.ids)
	}
	out := make([]uuid.UUID, 0, n)
	for i := len(s.ids) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.ids[i])
	}
	return out
}

func (s *policySet) clone() *policySet {
	c := &policySet{
		ids:   append([]uuid.UUID(nil), s.ids...),
		index: make(map[uuid.UUID]int, len(s.index)),
	}
	for id, i := range s.index {
		c.index[id] = i
	}
	return c
}
