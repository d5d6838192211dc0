package expr

import (
	"fmt"
)

// LoopStatus tracks the iteration state of nested foreach loops. A single
// status value is shared by a render; each loop pushes a level on entry and
// pops it on exit.
type LoopStatus struct {
	levels []*loopLevel
}

type loopLevel struct {
	index int
	size  int
}

// NewLoopStatus creates a status with no active loop.
func NewLoopStatus() *LoopStatus {
	return &LoopStatus{}
}

// Push enters a loop over size elements. The index starts before the first
// element.
func (s *LoopStatus) Push(size int) {
	s.levels = append(s.levels, &loopLevel{index: -1, size: size})
}

// Increment advances the innermost loop to its next element.
func (s *LoopStatus) Increment() {
	if l := s.top(); l != nil {
		l.index++
	}
}

// Pop leaves the innermost loop.
func (s *LoopStatus) Pop() {
	if len(s.levels) > 0 {
		s.levels = s.levels[:len(s.levels)-1]
	}
}

// Depth is the number of active loops.
func (s *LoopStatus) Depth() int { return len(s.levels) }

func (s *LoopStatus) top() *loopLevel {
	if len(s.levels) == 0 {
		return nil
	}
	return s.levels[len(s.levels)-1]
}

// Index is the zero-based position in the innermost loop.
func (s *LoopStatus) Index() int {
	if l := s.top(); l != nil {
		return l.index
	}
	return 0
}

// Count is the one-based position in the innermost loop.
func (s *LoopStatus) Count() int { return s.Index() + 1 }

// Size is the number of elements of the innermost loop.
func (s *LoopStatus) Size() int {
	if l := s.top(); l != nil {
		return l.size
	}
	return 0
}

func (s *LoopStatus) First() bool { return s.Index() == 0 }
func (s *LoopStatus) Last() bool  { return s.Count() == s.Size() }
func (s *LoopStatus) Odd() bool   { return s.Count()%2 == 1 }
func (s *LoopStatus) Even() bool  { return s.Count()%2 == 0 }

// Parent is a view of the enclosing loop. It reflects later increments of
// the enclosing loop.
func (s *LoopStatus) Parent() *LoopStatus {
	if len(s.levels) < 2 {
		return &LoopStatus{}
	}
	return &LoopStatus{levels: s.levels[:len(s.levels)-1]}
}

func (s *LoopStatus) member(name string) (any, error) {
	switch name {
	case "index":
		return s.Index(), nil
	case "count":
		return s.Count(), nil
	case "size":
		return s.Size(), nil
	case "first":
		return s.First(), nil
	case "last":
		return s.Last(), nil
	case "odd":
		return s.Odd(), nil
	case "even":
		return s.Even(), nil
	case "parent":
		return s.Parent(), nil
	}
	return nil, fmt.Errorf("loop status has no member %s", name)
}

func (s *LoopStatus) String() string {
	return fmt.Sprintf("status(%d/%d)", s.Count(), s.Size())
}
