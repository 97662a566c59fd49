package statemachine

import "fmt"

// Transition moves an entity from one state to another when an event happens.
type Transition[S, E comparable] struct {
	From  S
	Event E
	To    S
}

// Table is an immutable transition table keyed by [from][event].
// Safe for concurrent use.
type Table[S, E comparable] struct {
	next map[S]map[E]S
}

// NewTable builds a table. A (from, event) pair may appear only once.
func NewTable[S, E comparable](transitions ...Transition[S, E]) (*Table[S, E], error) {
	if len(transitions) == 0 {
		return nil, ErrNoTransitions
	}
	t := &Table[S, E]{next: make(map[S]map[E]S)}
	for _, tr := range transitions {
		events, ok := t.next[tr.From]
		if !ok {
			events = make(map[E]S)
			t.next[tr.From] = events
		}
		if _, dup := events[tr.Event]; dup {
			return nil, fmt.Errorf("%w: %v on %v", ErrDuplicateTransition, tr.From, tr.Event)
		}
		events[tr.Event] = tr.To
	}
	return t, nil
}

// MustTable is NewTable for package-level tables. Panics on a malformed table.
func MustTable[S, E comparable](transitions ...Transition[S, E]) *Table[S, E] {
	t, err := NewTable(transitions...)
	if err != nil {
		panic(fmt.Sprintf("failed to build transition table: %v", err))
	}
	return t
}

// Next returns the state reached from `from` on ev, or *ErrNoTransitionAvailable.
func (t *Table[S, E]) Next(from S, ev E) (S, error) {
	if to, ok := t.next[from][ev]; ok {
		return to, nil
	}
	var zero S
	return zero, NewErrNoTransitionAvailable(fmt.Sprint(from), fmt.Sprint(ev))
}

// Can reports whether ev is allowed from state from.
func (t *Table[S, E]) Can(from S, ev E) bool {
	_, ok := t.next[from][ev]
	return ok
}

// Final reports whether no event leads out of state s.
func (t *Table[S, E]) Final(s S) bool {
	return len(t.next[s]) == 0
}
