/*
snapshot.go - Capacity snapshot and its priority ordering

PURPOSE:
  Builds the ordered capacity-availability structure the Recommender consumes.
  For a prison + policy it joins the eligible staff roster, each staff
  member's configured capacity and live active-allocation count, and the
  timestamp of their most recent auto-allocation.

ORDERING - this ordering IS the priority queue:
  1. Availability (allocationCount / capacity, 0 when either is 0), ascending
  2. Older-or-null last-auto-allocation timestamp first
  3. Staff id ascending (total order guarantee)

  The structure is mutable: after each recommendation the chosen record is
  removed, its count incremented, and it is reinserted at its new position
  before the next person is considered. Correctness depends on the comparator
  output before and after the mutation, so the reposition is explicit rather
  than relying on any collection's in-place semantics.

SEE ALSO:
  - recommend.go: Consumes the snapshot head-first
  - types.go: StaffCapacity and Availability()
*/
package allocation

import (
	"context"
	"fmt"
	"sort"
)

// =============================================================================
// CAPACITY SNAPSHOT - Totally ordered, mutable
// =============================================================================

// CapacitySnapshot is the ordered collection of StaffCapacity records for one
// prison and policy. No two records share a staff id.
type CapacitySnapshot struct {
	PrisonCode PrisonCode
	Policy     PolicyCode
	Config     PrisonConfig

	ordered []*StaffCapacity
	byStaff map[StaffID]*StaffCapacity
}

// staffLess is the total order over capacity records.
func staffLess(a, b *StaffCapacity) bool {
	av, bv := a.Availability(), b.Availability()
	if !av.Equal(bv) {
		return av.LessThan(bv)
	}
	// Equal availability: staff who have gone longest without a new
	// auto-allocation first. Nil sorts before any timestamp.
	at, bt := a.LastAutoAllocationAt, b.LastAutoAllocationAt
	switch {
	case at == nil && bt != nil:
		return true
	case at != nil && bt == nil:
		return false
	case at != nil && bt != nil && !at.Equal(*bt):
		return at.Before(*bt)
	}
	return a.StaffID < b.StaffID
}

func newCapacitySnapshot(prison PrisonCode, policy PolicyCode, cfg PrisonConfig, records []*StaffCapacity) *CapacitySnapshot {
	s := &CapacitySnapshot{
		PrisonCode: prison,
		Policy:     policy,
		Config:     cfg,
		ordered:    records,
		byStaff:    make(map[StaffID]*StaffCapacity, len(records)),
	}
	for _, r := range records {
		s.byStaff[r.StaffID] = r
	}
	sort.SliceStable(s.ordered, func(i, j int) bool { return staffLess(s.ordered[i], s.ordered[j]) })
	return s
}

// Len returns the number of staff in the snapshot.
func (s *CapacitySnapshot) Len() int { return len(s.ordered) }

// Contains reports whether the staff member is in the snapshot.
func (s *CapacitySnapshot) Contains(id StaffID) bool {
	_, ok := s.byStaff[id]
	return ok
}

// Get returns the record for a staff member, or nil.
func (s *CapacitySnapshot) Get(id StaffID) *StaffCapacity { return s.byStaff[id] }

// Ordered returns the records in priority order. The returned slice is a
// copy; the records are shared.
func (s *CapacitySnapshot) Ordered() []*StaffCapacity {
	out := make([]*StaffCapacity, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// First returns the highest-priority record satisfying pred, or nil.
func (s *CapacitySnapshot) First(pred func(*StaffCapacity) bool) *StaffCapacity {
	for _, r := range s.ordered {
		if pred(r) {
			return r
		}
	}
	return nil
}

// Allocate increments the staff member's allocation count and repositions the
// record: remove, mutate, reinsert. Subsequent selections see the new order.
func (s *CapacitySnapshot) Allocate(id StaffID) error {
	rec, ok := s.byStaff[id]
	if !ok {
		return fmt.Errorf("staff %d not in capacity snapshot for %s", id, s.PrisonCode)
	}
	// Remove.
	for i, r := range s.ordered {
		if r == rec {
			s.ordered = append(s.ordered[:i], s.ordered[i+1:]...)
			break
		}
	}

	// Mutate.
	rec.AllocationCount++

	// Reinsert at the new position.
	j := sort.Search(len(s.ordered), func(i int) bool { return staffLess(rec, s.ordered[i]) })
	s.ordered = append(s.ordered, nil)
	copy(s.ordered[j+1:], s.ordered[j:])
	s.ordered[j] = rec
	return nil
}

// =============================================================================
// SNAPSHOT BUILDER - Pure read, no side effects
// =============================================================================

// SnapshotBuilder composes capacity records from the roster, staff
// configuration, and assignment store.
type SnapshotBuilder struct {
	Roster        StaffRoster
	StaffConfigs  StaffConfigStore
	Assignments   AssignmentStore
	PrisonConfigs PrisonConfigStore
}

// Build returns the capacity snapshot for auto-allocation at a prison under
// the actor's policy. Staff whose configuration is inactive or excludes
// auto-allocation are left out.
func (b *SnapshotBuilder) Build(ctx context.Context, actor ActorContext, prison PrisonCode) (*CapacitySnapshot, error) {
	if prison == "" {
		return nil, fmt.Errorf("prison code is required")
	}
	policy := actor.Policy.Code()

	cfg, err := PrisonConfigFor(ctx, b.PrisonConfigs, actor, prison)
	if err != nil {
		return nil, err
	}

	roster, err := b.Roster.FindEligibleStaff(ctx, prison, actor.Policy.StaffRole())
	if err != nil {
		return nil, err
	}

	staffIDs := make([]StaffID, len(roster))
	for i, s := range roster {
		staffIDs[i] = s.StaffID
	}

	configs, err := b.StaffConfigs.FindConfigs(ctx, policy, staffIDs)
	if err != nil {
		return nil, err
	}
	counts, err := b.Assignments.CountActiveByStaff(ctx, policy, prison, staffIDs)
	if err != nil {
		return nil, err
	}
	latest, err := b.Assignments.LatestAutoAllocationAt(ctx, policy, prison, staffIDs)
	if err != nil {
		return nil, err
	}

	var records []*StaffCapacity
	for _, s := range roster {
		capacity := cfg.Capacity
		if sc, ok := configs[s.StaffID]; ok {
			if !sc.IsActive() || !sc.AllowAutoAllocation {
				continue
			}
			if sc.Capacity > 0 {
				capacity = sc.Capacity
			}
		}
		rec := &StaffCapacity{
			StaffID:         s.StaffID,
			FirstName:       s.FirstName,
			LastName:        s.LastName,
			Capacity:        capacity,
			AllocationCount: counts[s.StaffID],
		}
		if t, ok := latest[s.StaffID]; ok {
			lt := t
			rec.LastAutoAllocationAt = &lt
		}
		records = append(records, rec)
	}

	return newCapacitySnapshot(prison, policy, cfg, records), nil
}
