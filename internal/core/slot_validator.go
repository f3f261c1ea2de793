package core

import (
	"fmt"
	"sort"

	"LendLedger/internal/observability"
	"LendLedger/internal/state"
)

// SlotValidator keeps each market's clock monotonic: a command may repeat
// the last applied slot but never go behind it.
// Not thread-safe; only accessed from the single-threaded deterministic core.
type SlotValidator struct {
	lastSlot map[string]uint64 // partition -> last applied slot
	metrics  *observability.Metrics
}

func NewSlotValidator(metrics *observability.Metrics) *SlotValidator {
	return &SlotValidator{
		lastSlot: make(map[string]uint64),
		metrics:  metrics,
	}
}

// ValidateSlot rejects a slot older than the partition's last applied one.
func (sv *SlotValidator) ValidateSlot(partition string, slot uint64) error {
	last, ok := sv.lastSlot[partition]
	if ok && slot < last {
		if sv.metrics != nil {
			sv.metrics.StaleSlots.WithLabelValues(partition).Inc()
		}
		return fmt.Errorf("stale slot: partition=%s, last=%d, got=%d: %w",
			partition, last, slot, state.ErrInvalidParameter)
	}
	return nil
}

// Advance records slot as applied for the partition.
func (sv *SlotValidator) Advance(partition string, slot uint64) {
	if slot >= sv.lastSlot[partition] {
		sv.lastSlot[partition] = slot
	}
}

// LastSlot returns the last applied slot of a partition.
func (sv *SlotValidator) LastSlot(partition string) (uint64, bool) {
	slot, ok := sv.lastSlot[partition]
	return slot, ok
}

// RestorePartition initializes a partition's clock (used during recovery)
func (sv *SlotValidator) RestorePartition(partition string, slot uint64) {
	sv.lastSlot[partition] = slot
}

// GetAllPartitions returns a copy of every partition's last slot.
func (sv *SlotValidator) GetAllPartitions() map[string]uint64 {
	out := make(map[string]uint64, len(sv.lastSlot))
	for k, v := range sv.lastSlot {
		out[k] = v
	}
	return out
}

// Partitions lists partition names in sorted order.
func (sv *SlotValidator) Partitions() []string {
	names := make([]string, 0, len(sv.lastSlot))
	for k := range sv.lastSlot {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
