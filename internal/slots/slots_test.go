package slots

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alphabot-ai/threadcache/internal/logging"
	"github.com/alphabot-ai/threadcache/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableReusesLowestFreedSlot(t *testing.T) {
	var tbl Table

	for i, name := range []string{"A", "B", "C"} {
		slot, changed, err := tbl.Allocate(name, NoLimit)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, i, slot)
	}

	slot, ok := tbl.Release("B")
	require.True(t, ok)
	assert.Equal(t, 1, slot)

	slot, _, err := tbl.Allocate("D", NoLimit)
	require.NoError(t, err)
	assert.Equal(t, 1, slot, "D should reuse B's slot")

	slot, _, err = tbl.Allocate("E", NoLimit)
	require.NoError(t, err)
	assert.Equal(t, 3, slot)
	assert.Empty(t, tbl.Free)
}

func TestTablePrefersLowestFreeEntry(t *testing.T) {
	tbl := Table{Slots: map[string]int{"x": 1}, Free: []int{3, 0, 2}}

	slot, _, err := tbl.Allocate("y", NoLimit)
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
	assert.Equal(t, []int{3, 2}, tbl.Free)
}

func TestTableAllocateIsIdempotent(t *testing.T) {
	var tbl Table
	tbl.Allocate("A", NoLimit)
	tbl.Allocate("B", NoLimit)
	tbl.Release("A")

	first, changed, err := tbl.Allocate("B", NoLimit)
	require.NoError(t, err)
	assert.False(t, changed)

	second, _, err := tbl.Allocate("B", NoLimit)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []int{0}, tbl.Free)
}

func TestTableLimit(t *testing.T) {
	var tbl Table
	_, _, err := tbl.Allocate("A", 2)
	require.NoError(t, err)
	_, _, err = tbl.Allocate("B", 2)
	require.NoError(t, err)

	_, changed, err := tbl.Allocate("C", 2)
	assert.ErrorIs(t, err, ErrSlotLimitExceeded)
	assert.False(t, changed)
	assert.Len(t, tbl.Slots, 2)

	_, _, err = tbl.Allocate("D", 0)
	assert.ErrorIs(t, err, ErrSlotLimitExceeded)
}

func TestTableReleaseUnknownIsNoop(t *testing.T) {
	var tbl Table
	_, ok := tbl.Release("missing")
	assert.False(t, ok)
	assert.Empty(t, tbl.Free)
}

// memoryTables is a TableStore with the same versioning rules as the SQLite
// store.
type memoryTables struct {
	mu       sync.Mutex
	rows     map[string]store.SlotTable
	writes   int
	conflict int // number of upcoming swaps forced to conflict
}

func newMemoryTables() *memoryTables {
	return &memoryTables{rows: map[string]store.SlotTable{}}
}

func (m *memoryTables) GetSlotTable(_ context.Context, entityID string) (*store.SlotTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[entityID]
	if !ok {
		return &store.SlotTable{EntityID: entityID, Slots: map[string]int{}}, nil
	}
	slots := make(map[string]int, len(row.Slots))
	for k, v := range row.Slots {
		slots[k] = v
	}
	return &store.SlotTable{
		EntityID: entityID,
		Slots:    slots,
		Free:     append([]int(nil), row.Free...),
		Version:  row.Version,
	}, nil
}

func (m *memoryTables) CompareAndSwapSlotTable(_ context.Context, table *store.SlotTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conflict > 0 {
		m.conflict--
		return store.ErrVersionConflict
	}
	if m.rows[table.EntityID].Version != table.Version {
		return store.ErrVersionConflict
	}
	table.Version++
	m.rows[table.EntityID] = store.SlotTable{
		EntityID: table.EntityID,
		Slots:    table.Slots,
		Free:     table.Free,
		Version:  table.Version,
	}
	m.writes++
	return nil
}

func TestAllocatorFreeListScenario(t *testing.T) {
	ctx := context.Background()
	tables := newMemoryTables()
	a := NewAllocator(tables, logging.Discard())

	for i, name := range []string{"A", "B", "C"} {
		slot, _, err := a.Allocate(ctx, "c1", name, NoLimit)
		require.NoError(t, err)
		assert.Equal(t, i, slot)
	}

	slot, found, err := a.Release(ctx, "c1", "B")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, slot)

	slot, _, err = a.Allocate(ctx, "c1", "D", NoLimit)
	require.NoError(t, err)
	assert.Equal(t, 1, slot)

	slot, _, err = a.Allocate(ctx, "c1", "E", NoLimit)
	require.NoError(t, err)
	assert.Equal(t, 3, slot)

	entries, err := a.List(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{"A", 0}, {"D", 1}, {"C", 2}, {"E", 3}}, entries)
}

func TestAllocatorIdempotentAllocateDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	tables := newMemoryTables()
	a := NewAllocator(tables, logging.Discard())

	first, created, err := a.Allocate(ctx, "c1", "logo", NoLimit)
	require.NoError(t, err)
	assert.True(t, created)
	second, created, err := a.Allocate(ctx, "c1", "logo", NoLimit)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, tables.writes)

	_, found, err := a.Release(ctx, "c1", "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, tables.writes)
}

func TestAllocatorRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	tables := newMemoryTables()
	tables.conflict = 3
	a := NewAllocator(tables, logging.Discard())

	slot, _, err := a.Allocate(ctx, "c1", "logo", NoLimit)
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
}

func TestAllocatorGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	tables := newMemoryTables()
	tables.conflict = 100
	a := NewAllocator(tables, logging.Discard())
	a.MaxAttempts = 3

	_, _, err := a.Allocate(ctx, "c1", "logo", NoLimit)
	assert.ErrorIs(t, err, ErrContention)
}

func TestAllocatorLimitSurfaces(t *testing.T) {
	ctx := context.Background()
	a := NewAllocator(newMemoryTables(), logging.Discard())

	_, _, err := a.Allocate(ctx, "c1", "one", 1)
	require.NoError(t, err)
	_, _, err = a.Allocate(ctx, "c1", "two", 1)
	assert.ErrorIs(t, err, ErrSlotLimitExceeded)
}

func TestAllocatorConcurrentAllocationsGetDistinctSlots(t *testing.T) {
	ctx := context.Background()
	tables := newMemoryTables()
	a := NewAllocator(tables, logging.Discard())
	a.MaxAttempts = 1000

	const n = 20
	slots := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slot, _, err := a.Allocate(ctx, "c1", fmt.Sprintf("img-%d", i), NoLimit)
			assert.NoError(t, err)
			slots[i] = slot
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, s := range slots {
		assert.False(t, seen[s], "slot %d assigned twice", s)
		seen[s] = true
		assert.Less(t, s, n)
	}
}
