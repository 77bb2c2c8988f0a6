package extension

import (
	"fmt"
	"sort"
	"sync"
)

// Phase is one of the fixed lifecycle scopes of a request.
type Phase uint8

const (
	PhaseRequest Phase = iota
	PhaseParse
	PhaseValidation
	PhaseExecution
)

func (p Phase) String() string {
	switch p {
	case PhaseRequest:
		return "request"
	case PhaseParse:
		return "parse"
	case PhaseValidation:
		return "validation"
	case PhaseExecution:
		return "execution"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Slot keys an entry in a Tree: either a lifecycle phase or a field
// resolution. The two spaces never collide.
type Slot struct {
	field bool
	phase Phase
	id    uint64
}

// PhaseSlot returns the slot of a lifecycle phase.
func PhaseSlot(p Phase) Slot { return Slot{phase: p} }

// FieldSlot returns the slot of the field resolution with the given
// ResolveID.Current.
func FieldSlot(resolveID uint64) Slot { return Slot{field: true, id: resolveID} }

// ParentSlot returns where the parent of a field lives: the enclosing field
// when there is one, the execution phase otherwise.
func ParentSlot(id ResolveID) Slot {
	if id.HasParent() {
		return FieldSlot(id.Parent)
	}
	return PhaseSlot(PhaseExecution)
}

// IsField reports whether s is a field slot.
func (s Slot) IsField() bool { return s.field }

func (s Slot) String() string {
	if s.field {
		return fmt.Sprintf("field(%d)", s.id)
	}
	return s.phase.String()
}

// Tree stores the open contexts of one extension instance, keyed by Slot.
// It is safe for concurrent use; the lock is held only for the map access.
//
// An entry lives from Enter to Exit. Exit and Lookup on an absent slot are
// valid and report false.
type Tree[C any] struct {
	mu      sync.Mutex
	entries map[Slot]C
}

// NewTree returns an empty Tree.
func NewTree[C any]() *Tree[C] {
	return &Tree[C]{entries: make(map[Slot]C)}
}

// Enter records c under s. An existing entry for s is overwritten without
// being released; the displaced value is returned with replaced == true so the
// caller can deal with it.
func (t *Tree[C]) Enter(s Slot, c C) (prev C, replaced bool) {
	t.mu.Lock()
	prev, replaced = t.entries[s]
	t.entries[s] = c
	t.mu.Unlock()
	return prev, replaced
}

// Exit removes and returns the entry for s.
func (t *Tree[C]) Exit(s Slot) (C, bool) {
	t.mu.Lock()
	c, ok := t.entries[s]
	if ok {
		delete(t.entries, s)
	}
	t.mu.Unlock()
	return c, ok
}

// Lookup returns the entry for s without removing it.
func (t *Tree[C]) Lookup(s Slot) (C, bool) {
	t.mu.Lock()
	c, ok := t.entries[s]
	t.mu.Unlock()
	return c, ok
}

// Len returns the number of open entries.
func (t *Tree[C]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Drain removes every remaining entry and returns them innermost first:
// field slots by descending resolve id, then phases from execution back to
// request.
func (t *Tree[C]) Drain() []C {
	t.mu.Lock()
	slots := make([]Slot, 0, len(t.entries))
	for s := range t.entries {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.field != b.field {
			return a.field
		}
		if a.field {
			return a.id > b.id
		}
		return a.phase > b.phase
	})
	out := make([]C, len(slots))
	for i, s := range slots {
		out[i] = t.entries[s]
		delete(t.entries, s)
	}
	t.mu.Unlock()
	return out
}
