/*
recommend.go - Capacity-based allocation recommendation

PURPOSE:
  Produces advisory (person, staff) recommendation pairs for everyone at a
  prison who could hold an assignment but currently does not. Nothing here
  mutates persisted state; the caller feeds accepted recommendations to the
  Manager.

ALGORITHM (per person, in sorted order):
  1. Continuity: staff who previously held an assignment for this exact
     person (any prison, any time) and are still in the snapshot win, chosen
     in snapshot priority order. Continuity overrides capacity entirely.
  2. Otherwise the snapshot head with spare capacity is chosen.
  3. Otherwise the person is reported as having no available staff - a
     reportable outcome, not an error.
  After each choice the snapshot is mutated and re-ordered, so every later
  person sees the updated load.

DETERMINISM:
  People are processed in (last name, first name, person id) order and the
  snapshot order is total, so identical inputs produce identical output on
  every run. Recommendation is deliberately not parallelizable.

SEE ALSO:
  - snapshot.go: The priority structure consumed here
  - manager.go:  Where accepted recommendations become durable state
*/
package allocation

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// Recommendation is one advisory (person, staff) pair.
type Recommendation struct {
	PersonID  PersonID
	FirstName string
	LastName  string
	StaffID   StaffID
}

// RecommendationResult is the outcome of one recommendation pass.
type RecommendationResult struct {
	PrisonCode PrisonCode
	Policy     PolicyCode

	Recommendations []Recommendation

	// NoAvailableStaff lists people for whom no staff member had spare
	// capacity and no continuity candidate existed.
	NoAvailableStaff []PersonID

	// Snapshot is the final, possibly depleted, capacity snapshot.
	Snapshot *CapacitySnapshot
}

// =============================================================================
// RECOMMENDER
// =============================================================================

// Recommender produces allocation recommendations. Read-only.
type Recommender struct {
	People      PersonSearch
	Assignments AssignmentStore
	Snapshots   *SnapshotBuilder
	Log         *zap.Logger
}

// Recommend runs one recommendation pass for a prison under the actor's
// policy.
func (r *Recommender) Recommend(ctx context.Context, actor ActorContext, prison PrisonCode) (*RecommendationResult, error) {
	policy := actor.Policy.Code()

	snapshot, err := r.Snapshots.Build(ctx, actor, prison)
	if err != nil {
		return nil, err
	}
	if !snapshot.Config.Enabled || !snapshot.Config.AllowAutoAllocation {
		return nil, ErrPrisonNotEnabled
	}

	people, err := r.unallocatedPeople(ctx, policy, prison)
	if err != nil {
		return nil, err
	}

	previous, err := r.previousStaff(ctx, policy, people)
	if err != nil {
		return nil, err
	}

	result := &RecommendationResult{PrisonCode: prison, Policy: policy, Snapshot: snapshot}
	for _, p := range people {
		chosen := r.selectStaff(snapshot, previous[p.ID])
		if chosen == nil {
			result.NoAvailableStaff = append(result.NoAvailableStaff, p.ID)
			continue
		}
		if err := snapshot.Allocate(chosen.StaffID); err != nil {
			return nil, err
		}
		result.Recommendations = append(result.Recommendations, Recommendation{
			PersonID:  p.ID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			StaffID:   chosen.StaffID,
		})
	}

	if r.Log != nil {
		r.Log.Info("recommendation pass complete",
			zap.String("prison", string(prison)),
			zap.String("policy", string(policy)),
			zap.Int("recommended", len(result.Recommendations)),
			zap.Int("noAvailableStaff", len(result.NoAvailableStaff)),
		)
	}
	return result, nil
}

// selectStaff applies the continuity-then-capacity rule for one person.
func (r *Recommender) selectStaff(snapshot *CapacitySnapshot, previous map[StaffID]bool) *StaffCapacity {
	if len(previous) > 0 {
		// Continuity overrides capacity: even a staff member at or over
		// capacity is chosen if they held this person before.
		if rec := snapshot.First(func(sc *StaffCapacity) bool { return previous[sc.StaffID] }); rec != nil {
			return rec
		}
	}
	return snapshot.First(func(sc *StaffCapacity) bool { return sc.HasSpareCapacity() })
}

// unallocatedPeople returns allocation candidates in deterministic order:
// high complexity-of-need excluded, people with an active assignment
// excluded, sorted by (last name, first name, person id). Later steps depend
// on this processing order.
func (r *Recommender) unallocatedPeople(ctx context.Context, policy PolicyCode, prison PrisonCode) ([]Person, error) {
	all, err := r.People.FindAllocatablePeople(ctx, prison)
	if err != nil {
		return nil, err
	}

	ids := make([]PersonID, 0, len(all))
	for _, p := range all {
		if !p.HighComplexityOfNeed {
			ids = append(ids, p.ID)
		}
	}
	active, err := r.Assignments.FindActiveByPeople(ctx, policy, ids)
	if err != nil {
		return nil, err
	}
	allocated := make(map[PersonID]bool, len(active))
	for _, a := range active {
		allocated[a.PersonID] = true
	}

	var people []Person
	for _, p := range all {
		if p.HighComplexityOfNeed || allocated[p.ID] {
			continue
		}
		people = append(people, p)
	}
	sort.Slice(people, func(i, j int) bool {
		a, b := people[i], people[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	})
	return people, nil
}

// previousStaff returns, per person, the set of staff ids that ever held an
// assignment for them. Any history counts, not just the current prison.
func (r *Recommender) previousStaff(ctx context.Context, policy PolicyCode, people []Person) (map[PersonID]map[StaffID]bool, error) {
	if len(people) == 0 {
		return nil, nil
	}
	ids := make([]PersonID, len(people))
	for i, p := range people {
		ids[i] = p.ID
	}
	history, err := r.Assignments.FindByPeople(ctx, policy, ids)
	if err != nil {
		return nil, err
	}
	previous := make(map[PersonID]map[StaffID]bool)
	for _, a := range history {
		set := previous[a.PersonID]
		if set == nil {
			set = make(map[StaffID]bool)
			previous[a.PersonID] = set
		}
		set[a.StaffID] = true
	}
	return previous, nil
}
