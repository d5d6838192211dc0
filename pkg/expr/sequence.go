package expr

import (
	"fmt"
	"strings"
	"sync"
)

// SequenceSource expands a string range such as "Mon".."Fri".
type SequenceSource interface {
	Sequence(begin, end string) ([]string, error)
}

// Sequences is a set of cyclic string lists. A range between two members
// of the same list walks forward from begin to end, wrapping around the end
// of the list.
type Sequences struct {
	mu    sync.RWMutex
	lists [][]string
}

// NewSequences creates a set from the given lists.
func NewSequences(lists ...[]string) *Sequences {
	s := &Sequences{}
	for _, l := range lists {
		s.Add(l)
	}
	return s
}

// DefaultSequences holds English weekday and month names, long and short.
func DefaultSequences() *Sequences {
	return NewSequences(
		[]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
		[]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
		[]string{"January", "February", "March", "April", "May", "June",
			"July", "August", "September", "October", "November", "December"},
		[]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
	)
}

// Add appends a list. Empty lists are ignored.
func (s *Sequences) Add(list []string) {
	if len(list) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = append(s.lists, append([]string(nil), list...))
}

// Sequence returns the members from begin to end inclusive from the first
// list containing both. Exact matches are preferred over case-insensitive
// ones.
func (s *Sequences) Sequence(begin, end string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fold := range []bool{false, true} {
		for _, list := range s.lists {
			b, e := indexIn(list, begin, fold), indexIn(list, end, fold)
			if b < 0 || e < 0 {
				continue
			}
			out := []string{list[b]}
			for i := b; i != e; {
				i = (i + 1) % len(list)
				out = append(out, list[i])
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("no sequence contains %q and %q", begin, end)
}

func indexIn(list []string, s string, fold bool) int {
	for i, v := range list {
		if v == s || (fold && strings.EqualFold(v, s)) {
			return i
		}
	}
	return -1
}
