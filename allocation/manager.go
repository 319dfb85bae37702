/*
manager.go - Validated, atomic allocation/deallocation batches

PURPOSE:
  The Manager is the only component that durably mutates assignment state.
  It validates a whole batch up front - prison configuration, residency,
  staff eligibility, reference data - and only then transitions rows, inside
  a single store transaction.

ORDERING - load-bearing, not incidental:
  Deallocations are fully applied before allocations are evaluated, because
  an allocation's "already assigned to this staff" check must see the
  post-deallocation state.

STALE INTENT:
  A proposed deallocation naming a (person, staff) pair that does not match
  the currently active assignment is silently skipped. The caller's view of
  the world may be out of date; that is not an error.

IDEMPOTENCE AND OVERRIDE:
  Allocating a person to the staff member they already hold is a no-op.
  Allocating to a different staff member first deallocates the existing row
  with reason OVERRIDE, then creates the new one. No capacity check is made
  on that path: a manual reassignment always succeeds.

SEE ALSO:
  - deallocate.go: Event-driven triggers using the same transition primitive
  - errors.go: The named validation errors produced here
*/
package allocation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// REQUEST/RESULT TYPES
// =============================================================================

// ProposedAllocation asks for person -> staff under the acting policy.
type ProposedAllocation struct {
	PersonID PersonID
	StaffID  StaffID
	Reason   string // DomainAllocationReason code
}

// ProposedDeallocation asks for the removal of person -> staff.
type ProposedDeallocation struct {
	PersonID PersonID
	StaffID  StaffID
	Reason   string // DomainDeallocationReason code
}

// ManageRequest is one batch of proposed transitions.
type ManageRequest struct {
	Allocations   []ProposedAllocation
	Deallocations []ProposedDeallocation
}

// ManageResult reports what the batch actually changed.
type ManageResult struct {
	Allocated   []PersonID
	Deallocated []PersonID

	// Ignored lists proposals skipped as stale intent or idempotent repeats.
	Ignored []PersonID
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager validates and applies allocation batches.
type Manager struct {
	Assignments   AssignmentStore
	StaffConfigs  StaffConfigStore
	PrisonConfigs PrisonConfigStore
	ReferenceData *Resolver
	Roster        StaffRoster
	Location      PersonLocation
	Log           *zap.Logger

	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

func (m *Manager) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

// Manage validates the whole batch, then applies all deallocations and all
// allocations inside one store transaction. No mutation is visible unless
// every precondition held and every transition committed.
func (m *Manager) Manage(ctx context.Context, actor ActorContext, prison PrisonCode, req ManageRequest) (*ManageResult, error) {
	if len(req.Allocations) == 0 && len(req.Deallocations) == 0 {
		return nil, ErrEmptyRequest
	}

	if err := m.validatePrison(ctx, actor, prison); err != nil {
		return nil, err
	}
	if err := m.validateResidency(ctx, prison, req.Allocations); err != nil {
		return nil, err
	}
	if err := m.validateStaff(ctx, actor, prison, req); err != nil {
		return nil, err
	}
	if err := m.validateReasons(ctx, req); err != nil {
		return nil, err
	}

	result := &ManageResult{}
	err := m.Assignments.WithTx(ctx, func(store AssignmentStore) error {
		if err := m.applyDeallocations(ctx, store, actor, req.Deallocations, result); err != nil {
			return err
		}
		return m.applyAllocations(ctx, store, actor, prison, req.Allocations, result)
	})
	if err != nil {
		return nil, err
	}

	if m.Log != nil {
		m.Log.Info("allocation batch applied",
			zap.String("prison", string(prison)),
			zap.String("policy", string(actor.Policy.Code())),
			zap.String("username", actor.Username),
			zap.Int("allocated", len(result.Allocated)),
			zap.Int("deallocated", len(result.Deallocated)),
			zap.Int("ignored", len(result.Ignored)),
		)
	}
	return result, nil
}

// =============================================================================
// VALIDATION - All preconditions checked before any mutation
// =============================================================================

func (m *Manager) validatePrison(ctx context.Context, actor ActorContext, prison PrisonCode) error {
	cfg, err := PrisonConfigFor(ctx, m.PrisonConfigs, actor, prison)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		return ErrPrisonNotEnabled
	}
	return nil
}

func (m *Manager) validateResidency(ctx context.Context, prison PrisonCode, allocations []ProposedAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	people := make([]PersonID, 0, len(allocations))
	seen := make(map[PersonID]bool)
	for _, a := range allocations {
		if !seen[a.PersonID] {
			seen[a.PersonID] = true
			people = append(people, a.PersonID)
		}
	}
	residents, err := m.Location.FindResidents(ctx, people)
	if err != nil {
		return err
	}
	var missing []PersonID
	for _, id := range people {
		if residents[id] != prison {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &ResidencyError{PrisonCode: prison, PersonIDs: missing}
	}
	return nil
}

func (m *Manager) validateStaff(ctx context.Context, actor ActorContext, prison PrisonCode, req ManageRequest) error {
	staffIDs := make([]StaffID, 0, len(req.Allocations))
	seen := make(map[StaffID]bool)
	for _, a := range req.Allocations {
		if !seen[a.StaffID] {
			seen[a.StaffID] = true
			staffIDs = append(staffIDs, a.StaffID)
		}
	}
	if len(staffIDs) == 0 {
		return nil
	}

	roster, err := m.Roster.FindEligibleStaff(ctx, prison, actor.Policy.StaffRole())
	if err != nil {
		return err
	}
	eligible := make(map[StaffID]bool, len(roster))
	for _, s := range roster {
		eligible[s.StaffID] = true
	}
	var offRoster []StaffID
	for _, id := range staffIDs {
		if !eligible[id] {
			offRoster = append(offRoster, id)
		}
	}
	if len(offRoster) > 0 {
		return &StaffEligibilityError{PrisonCode: prison, StaffIDs: offRoster}
	}

	configs, err := m.StaffConfigs.FindConfigs(ctx, actor.Policy.Code(), staffIDs)
	if err != nil {
		return err
	}
	var inactive []StaffID
	for _, id := range staffIDs {
		if cfg, ok := configs[id]; ok && !cfg.IsActive() {
			inactive = append(inactive, id)
		}
	}
	if len(inactive) > 0 {
		return &StaffEligibilityError{PrisonCode: prison, StaffIDs: inactive, Inactive: true}
	}
	return nil
}

func (m *Manager) validateReasons(ctx context.Context, req ManageRequest) error {
	for _, a := range req.Allocations {
		if _, err := m.ReferenceData.Resolve(ctx, DomainAllocationReason, a.Reason); err != nil {
			return err
		}
	}
	for _, d := range req.Deallocations {
		if _, err := m.ReferenceData.Resolve(ctx, DomainDeallocationReason, d.Reason); err != nil {
			return err
		}
	}
	// The override path resolves its own reason; check it up front too so the
	// batch cannot fail halfway through.
	if len(req.Allocations) > 0 {
		if _, err := m.ReferenceData.Resolve(ctx, DomainDeallocationReason, ReasonOverride); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSITIONS - Deallocations strictly before allocations
// =============================================================================

func (m *Manager) applyDeallocations(ctx context.Context, store AssignmentStore, actor ActorContext, proposals []ProposedDeallocation, result *ManageResult) error {
	for _, d := range proposals {
		active, err := store.FindActiveByPeople(ctx, actor.Policy.Code(), []PersonID{d.PersonID})
		if err != nil {
			return err
		}
		// Stale intent: no active assignment, or the active assignment names
		// a different staff member. Skip, do not fail.
		if len(active) == 0 || active[0].StaffID != d.StaffID {
			result.Ignored = append(result.Ignored, d.PersonID)
			continue
		}
		a := active[0]
		a.Deallocate(d.Reason, actor.Username, m.now())
		if err := store.Save(ctx, &a); err != nil {
			return err
		}
		result.Deallocated = append(result.Deallocated, d.PersonID)
	}
	return nil
}

func (m *Manager) applyAllocations(ctx context.Context, store AssignmentStore, actor ActorContext, prison PrisonCode, proposals []ProposedAllocation, result *ManageResult) error {
	policy := actor.Policy.Code()
	for _, p := range proposals {
		active, err := store.FindActiveByPeople(ctx, policy, []PersonID{p.PersonID})
		if err != nil {
			return err
		}
		if len(active) > 0 {
			if active[0].StaffID == p.StaffID {
				// Idempotent repeat.
				result.Ignored = append(result.Ignored, p.PersonID)
				continue
			}
			// Reassignment: supersede the existing row. No capacity check on
			// the new staff member on this path.
			existing := active[0]
			existing.Deallocate(ReasonOverride, actor.Username, m.now())
			if err := store.Save(ctx, &existing); err != nil {
				return err
			}
		}
		if err := store.DeleteProvisional(ctx, policy, []PersonID{p.PersonID}); err != nil {
			return err
		}
		next := &Assignment{
			ID:               uuid.NewString(),
			PersonID:         p.PersonID,
			PrisonCode:       prison,
			StaffID:          p.StaffID,
			Policy:           policy,
			Active:           true,
			AllocatedAt:      m.now(),
			AllocatedBy:      actor.Username,
			AllocationReason: p.Reason,
		}
		if err := store.Save(ctx, next); err != nil {
			return err
		}
		result.Allocated = append(result.Allocated, p.PersonID)
	}
	return nil
}
