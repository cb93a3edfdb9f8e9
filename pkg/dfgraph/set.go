package dfgraph

import "github.com/ritzau/dfgraph/pkg/cellid"

// idSet is an insertion-ordered set of cell ids. Adding an existing member is a no-op.
type idSet struct {
	order []cellid.ID
	index map[cellid.ID]struct{}
}

func newIDSet(ids ...cellid.ID) *idSet {
	s := &idSet{
		order: make([]cellid.ID, 0, len(ids)),
		index: make(map[cellid.ID]struct{}, len(ids)),
	}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

// add inserts id and reports whether it was new
func (s *idSet) add(id cellid.ID) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *idSet) has(id cellid.ID) bool {
	_, ok := s.index[id]
	return ok
}

// remove deletes id and reports whether it was present
func (s *idSet) remove(id cellid.ID) bool {
	if _, ok := s.index[id]; !ok {
		return false
	}
	delete(s.index, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *idSet) len() int {
	return len(s.order)
}

// items returns a copy of the members in insertion order
func (s *idSet) items() []cellid.ID {
	out := make([]cellid.ID, len(s.order))
	copy(out, s.order)
	return out
}
