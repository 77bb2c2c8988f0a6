package extension

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestTree_EnterExit(t *testing.T) {
	tree := NewTree[string]()
	_, replaced := tree.Enter(PhaseSlot(PhaseRequest), "request")
	require.False(t, replaced)

	got, ok := tree.Lookup(PhaseSlot(PhaseRequest))
	require.True(t, ok)
	require.Equal(t, "request", got)

	got, ok = tree.Exit(PhaseSlot(PhaseRequest))
	require.True(t, ok)
	require.Equal(t, "request", got)
	require.Equal(t, 0, tree.Len())

	_, ok = tree.Exit(PhaseSlot(PhaseRequest))
	require.False(t, ok, "second exit must be a no-op")
}

func TestTree_ExitNeverEntered(t *testing.T) {
	tree := NewTree[int]()
	got, ok := tree.Exit(FieldSlot(42))
	require.False(t, ok)
	require.Zero(t, got)
	_, ok = tree.Lookup(PhaseSlot(PhaseExecution))
	require.False(t, ok)
}

func TestTree_DuplicateEnterOverwrites(t *testing.T) {
	tree := NewTree[string]()
	tree.Enter(FieldSlot(1), "first")
	prev, replaced := tree.Enter(FieldSlot(1), "second")
	require.True(t, replaced)
	require.Equal(t, "first", prev)

	got, _ := tree.Exit(FieldSlot(1))
	require.Equal(t, "second", got)
}

func TestSlot_PhaseAndFieldDoNotCollide(t *testing.T) {
	tree := NewTree[string]()
	for p := PhaseRequest; p <= PhaseExecution; p++ {
		tree.Enter(PhaseSlot(p), p.String())
		tree.Enter(FieldSlot(uint64(p)), fmt.Sprintf("field-%d", p))
	}
	require.Equal(t, 8, tree.Len())
	got, _ := tree.Lookup(PhaseSlot(PhaseParse))
	require.Equal(t, "parse", got)
	got, _ = tree.Lookup(FieldSlot(uint64(PhaseParse)))
	require.Equal(t, "field-1", got)
}

func TestParentSlot(t *testing.T) {
	require.Equal(t, PhaseSlot(PhaseExecution), ParentSlot(ResolveID{Current: 3}))
	require.Equal(t, FieldSlot(3), ParentSlot(ResolveID{Current: 7, Parent: 3}))
}

// Pattern: Result comparison
func TestTree_DrainInnermostFirst(t *testing.T) {
	tree := NewTree[string]()
	tree.Enter(PhaseSlot(PhaseRequest), "request")
	tree.Enter(PhaseSlot(PhaseExecution), "execution")
	tree.Enter(FieldSlot(1), "f1")
	tree.Enter(FieldSlot(5), "f5")
	tree.Enter(FieldSlot(2), "f2")

	got := tree.Drain()
	want := []string{"f5", "f2", "f1", "execution", "request"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Drain order mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 0, tree.Len())
	require.Empty(t, tree.Drain())
}

func TestTree_ConcurrentEnterExit(t *testing.T) {
	tree := NewTree[uint64]()
	tree.Enter(PhaseSlot(PhaseExecution), 0)

	var wg sync.WaitGroup
	for i := uint64(1); i <= 64; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			if _, ok := tree.Lookup(PhaseSlot(PhaseExecution)); !ok {
				t.Errorf("execution slot missing")
			}
			tree.Enter(FieldSlot(id), id)
			got, ok := tree.Exit(FieldSlot(id))
			if !ok || got != id {
				t.Errorf("Exit(%d) = %d, %v", id, got, ok)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, tree.Len())
}
