// Package slots assigns small, stable integer slots to named attachments
// owned by one entity, reusing slots freed by deletion.
package slots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alphabot-ai/threadcache/internal/store"
)

// NoLimit disables the slot ceiling passed to Allocate.
const NoLimit = -1

const defaultMaxAttempts = 16

var (
	ErrSlotLimitExceeded = errors.New("slot limit exceeded")
	ErrContention        = errors.New("slot table update kept conflicting")
)

// Table is the in-memory form of an entity's slot table. It has no
// knowledge of persistence; Allocator handles the read-modify-write.
type Table struct {
	Slots map[string]int
	Free  []int
}

// Allocate returns the slot for name. An existing name keeps its slot and
// changed is false. Otherwise the lowest freed slot is reused, or the next
// unused one is taken. Nothing is modified when the result would reach max.
func (t *Table) Allocate(name string, max int) (slot int, changed bool, err error) {
	if t.Slots == nil {
		t.Slots = map[string]int{}
	}
	if slot, ok := t.Slots[name]; ok {
		return slot, false, nil
	}

	lowest := -1
	if len(t.Free) > 0 {
		lowest = 0
		for i, s := range t.Free {
			if s < t.Free[lowest] {
				lowest = i
			}
		}
		slot = t.Free[lowest]
	} else {
		slot = len(t.Slots)
	}

	if max >= 0 && slot >= max {
		return 0, false, fmt.Errorf("%w: slot %d, max %d", ErrSlotLimitExceeded, slot, max)
	}

	if lowest >= 0 {
		t.Free = append(t.Free[:lowest], t.Free[lowest+1:]...)
	}
	t.Slots[name] = slot
	return slot, true, nil
}

// Release frees the slot held by name. It reports false if name had none.
func (t *Table) Release(name string) (int, bool) {
	slot, ok := t.Slots[name]
	if !ok {
		return 0, false
	}
	delete(t.Slots, name)
	t.Free = append(t.Free, slot)
	return slot, true
}

// Entry is one named slot.
type Entry struct {
	Name string `json:"name"`
	Slot int    `json:"slot"`
}

// Entries lists the table's names ordered by slot.
func (t *Table) Entries() []Entry {
	entries := make([]Entry, 0, len(t.Slots))
	for name, slot := range t.Slots {
		entries = append(entries, Entry{Name: name, Slot: slot})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Slot < entries[j].Slot })
	return entries
}

// TableStore persists slot tables with optimistic versioning.
type TableStore interface {
	GetSlotTable(ctx context.Context, entityID string) (*store.SlotTable, error)
	CompareAndSwapSlotTable(ctx context.Context, table *store.SlotTable) error
}

// Allocator performs atomic slot updates against a TableStore by retrying
// compare-and-swap writes until one lands.
type Allocator struct {
	store       TableStore
	logger      *slog.Logger
	MaxAttempts int
}

func NewAllocator(s TableStore, logger *slog.Logger) *Allocator {
	return &Allocator{store: s, logger: logger, MaxAttempts: defaultMaxAttempts}
}

// Allocate assigns a slot to name within entityID's table. Allocating a
// name that already has a slot returns it without writing, and created is
// false.
func (a *Allocator) Allocate(ctx context.Context, entityID, name string, max int) (slot int, created bool, err error) {
	err = a.update(ctx, entityID, func(t *Table) (bool, error) {
		var err error
		slot, created, err = t.Allocate(name, max)
		return created, err
	})
	if err != nil {
		return 0, false, err
	}
	return slot, created, nil
}

// Release frees name's slot. Releasing an unknown name is a no-op and
// reports false.
func (a *Allocator) Release(ctx context.Context, entityID, name string) (int, bool, error) {
	var (
		slot  int
		found bool
	)
	err := a.update(ctx, entityID, func(t *Table) (bool, error) {
		slot, found = t.Release(name)
		return found, nil
	})
	return slot, found, err
}

// List returns entityID's attachments ordered by slot.
func (a *Allocator) List(ctx context.Context, entityID string) ([]Entry, error) {
	row, err := a.store.GetSlotTable(ctx, entityID)
	if err != nil {
		return nil, err
	}
	t := Table{Slots: row.Slots, Free: row.Free}
	return t.Entries(), nil
}

func (a *Allocator) update(ctx context.Context, entityID string, mutate func(*Table) (bool, error)) error {
	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		row, err := a.store.GetSlotTable(ctx, entityID)
		if err != nil {
			return fmt.Errorf("load slot table %s: %w", entityID, err)
		}

		t := Table{Slots: row.Slots, Free: row.Free}
		changed, err := mutate(&t)
		if err != nil || !changed {
			return err
		}

		row.Slots, row.Free = t.Slots, t.Free
		err = a.store.CompareAndSwapSlotTable(ctx, row)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return fmt.Errorf("save slot table %s: %w", entityID, err)
		}
		a.logger.Debug("slot table conflict, retrying", "entity", entityID, "attempt", attempt)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrContention, entityID, attempts)
}
