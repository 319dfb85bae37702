/*
deallocate.go - Event-driven deallocation triggers

PURPOSE:
  Reactive rules invoked by already-parsed domain events: a person leaving
  custody, moving prisons, two person identifiers being merged, or a staff
  member being deactivated. Each rule uses the same deallocate primitive as
  the Manager and transitions rows inside a store transaction.

REPLAY SAFETY:
  Events arrive at least once and possibly out of order. Every trigger
  treats a missing or already-inactive assignment as a no-op, and the
  transfer trigger ignores moves whose destination matches the prison
  already on the assignment.

STATE MACHINE (single Assignment):
  none -> ACTIVE -> INACTIVE(reason), terminal. A later allocation for the
  same person is a new row, never a reopening.

SEE ALSO:
  - manager.go: The request-driven path sharing Assignment.Deallocate
  - referencedata.go: RELEASED / TRANSFER / STAFF_STATUS_CHANGE / MERGED
*/
package allocation

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DeallocationService applies event-driven deallocations.
type DeallocationService struct {
	Assignments   AssignmentStore
	ReferenceData *Resolver
	Log           *zap.Logger

	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

func (s *DeallocationService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// PersonReleased deallocates the person's active assignment with RELEASED.
func (s *DeallocationService) PersonReleased(ctx context.Context, actor ActorContext, person PersonID) error {
	return s.deallocatePerson(ctx, actor, person, ReasonReleased, nil)
}

// PersonTransferred deallocates with TRANSFER when the person's new prison
// differs from the one on the active assignment. A move to the same prison
// is a no-op, which makes duplicate and out-of-order movement events safe.
func (s *DeallocationService) PersonTransferred(ctx context.Context, actor ActorContext, person PersonID, newPrison PrisonCode) error {
	return s.deallocatePerson(ctx, actor, person, ReasonTransfer, func(a *Assignment) bool {
		return a.PrisonCode != newPrison
	})
}

// StaffDeactivated deallocates every active assignment held by the staff
// member at the prison with STAFF_STATUS_CHANGE. Called when a staff
// configuration change requests deactivation of active allocations.
func (s *DeallocationService) StaffDeactivated(ctx context.Context, actor ActorContext, prison PrisonCode, staffID StaffID) error {
	if _, err := s.ReferenceData.Resolve(ctx, DomainDeallocationReason, ReasonStaffStatusChange); err != nil {
		return err
	}
	return s.Assignments.WithTx(ctx, func(store AssignmentStore) error {
		active, err := store.FindActiveByStaff(ctx, actor.Policy.Code(), prison, staffID)
		if err != nil {
			return err
		}
		at := s.now()
		updated := make([]*Assignment, 0, len(active))
		for i := range active {
			a := active[i]
			a.Deallocate(ReasonStaffStatusChange, actor.Username, at)
			updated = append(updated, &a)
		}
		if len(updated) == 0 {
			return nil
		}
		if err := store.SaveAll(ctx, updated); err != nil {
			return err
		}
		if s.Log != nil {
			s.Log.Info("deallocated assignments for deactivated staff",
				zap.String("prison", string(prison)),
				zap.Int64("staffId", int64(staffID)),
				zap.Int("count", len(updated)),
			)
		}
		return nil
	})
}

// PeopleMerged handles the merge of removedPerson into survivor. If the
// survivor already holds an active assignment the removed identifier's row is
// deallocated with MERGED; otherwise the row is re-pointed at the survivor.
func (s *DeallocationService) PeopleMerged(ctx context.Context, actor ActorContext, removedPerson, survivor PersonID) error {
	if _, err := s.ReferenceData.Resolve(ctx, DomainDeallocationReason, ReasonMerged); err != nil {
		return err
	}
	policy := actor.Policy.Code()
	return s.Assignments.WithTx(ctx, func(store AssignmentStore) error {
		removed, err := store.FindActiveByPeople(ctx, policy, []PersonID{removedPerson})
		if err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		surviving, err := store.FindActiveByPeople(ctx, policy, []PersonID{survivor})
		if err != nil {
			return err
		}
		a := removed[0]
		if len(surviving) > 0 {
			a.Deallocate(ReasonMerged, actor.Username, s.now())
		} else {
			a.PersonID = survivor
		}
		return store.Save(ctx, &a)
	})
}

// deallocatePerson transitions the person's active assignment, if any and if
// keep returns true (nil keep means always). Missing assignments are no-ops.
func (s *DeallocationService) deallocatePerson(ctx context.Context, actor ActorContext, person PersonID, reason string, keep func(*Assignment) bool) error {
	if _, err := s.ReferenceData.Resolve(ctx, DomainDeallocationReason, reason); err != nil {
		return err
	}
	return s.Assignments.WithTx(ctx, func(store AssignmentStore) error {
		active, err := store.FindActiveByPeople(ctx, actor.Policy.Code(), []PersonID{person})
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return nil
		}
		a := active[0]
		if keep != nil && !keep(&a) {
			return nil
		}
		a.Deallocate(reason, actor.Username, s.now())
		return store.Save(ctx, &a)
	})
}
