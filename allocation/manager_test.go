package allocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/keyworker-engine/allocation"
)

// newManagedEngine is newEngine with a prison, roster and residents ready
// for manage calls.
func newManagedEngine(t *testing.T) *engine {
	t.Helper()
	e := newEngine()
	e.addStaff("LEI", 1, "Ann", "Archer")
	e.addStaff("LEI", 2, "Bob", "Baker")
	e.addStaff("LEI", 3, "Cal", "Cooper")
	e.addPerson("LEI", "A1234AA", "First", "Person", false)
	e.addPerson("LEI", "B2345BB", "Second", "Person", false)
	return e
}

func activeFor(t *testing.T, e *engine, person allocation.PersonID) []allocation.Assignment {
	t.Helper()
	active, err := e.store.FindActiveByPeople(context.Background(), allocation.PolicyKeyWorker,
		[]allocation.PersonID{person})
	require.NoError(t, err)
	return active
}

// =============================================================================
// VALIDATION - Named precondition errors, no partial mutation
// =============================================================================

func TestManage_EmptyRequestRejected(t *testing.T) {
	e := newManagedEngine(t)

	_, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{})

	require.ErrorIs(t, err, allocation.ErrEmptyRequest)
	assert.True(t, allocation.IsClientError(err))
}

func TestManage_PrisonNotEnabled(t *testing.T) {
	e := newManagedEngine(t)
	require.NoError(t, e.store.SavePrisonConfig(context.Background(), allocation.PrisonConfig{
		PrisonCode: "LEI", Policy: allocation.PolicyKeyWorker, Enabled: false, Capacity: 6,
	}))

	_, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 1, Reason: allocation.ReasonManual},
		},
	})

	require.ErrorIs(t, err, allocation.ErrPrisonNotEnabled)
	assert.True(t, allocation.IsPreconditionFailure(err))
}

func TestManage_PersonNotAtPrison(t *testing.T) {
	e := newManagedEngine(t)
	e.residents.Residents["A1234AA"] = "MDI" // moved elsewhere

	_, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 1, Reason: allocation.ReasonManual},
		},
	})

	require.ErrorIs(t, err, allocation.ErrPersonNotAtPrison)
	assert.Contains(t, err.Error(), "A1234AA")
}

func TestManage_StaffNotOnRoster(t *testing.T) {
	e := newManagedEngine(t)

	_, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 99, Reason: allocation.ReasonManual},
		},
	})

	require.ErrorIs(t, err, allocation.ErrStaffNotAllocatable)
}

func TestManage_StaffNotActive(t *testing.T) {
	e := newManagedEngine(t)
	require.NoError(t, e.store.SaveStaffConfig(context.Background(), allocation.StaffConfig{
		StaffID: 1, Policy: allocation.PolicyKeyWorker, Status: allocation.StaffInactive,
	}))

	_, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 1, Reason: allocation.ReasonManual},
		},
	})

	require.ErrorIs(t, err, allocation.ErrStaffNotActive)
}

func TestManage_UnknownReasonIsConfigurationError(t *testing.T) {
	e := newManagedEngine(t)

	_, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 1, Reason: "NO_SUCH_REASON"},
		},
	})

	require.ErrorIs(t, err, allocation.ErrReferenceDataNotFound)
	assert.Contains(t, err.Error(), "NO_SUCH_REASON")

	// Nothing was mutated.
	assert.Empty(t, activeFor(t, e, "A1234AA"))
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func TestManage_AllocateCreatesAssignment(t *testing.T) {
	e := newManagedEngine(t)

	result, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 1, Reason: allocation.ReasonManual},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []allocation.PersonID{"A1234AA"}, result.Allocated)

	active := activeFor(t, e, "A1234AA")
	require.Len(t, active, 1)
	assert.Equal(t, allocation.StaffID(1), active[0].StaffID)
	assert.Equal(t, "tester", active[0].AllocatedBy)
	assert.Equal(t, allocation.ReasonManual, active[0].AllocationReason)
	assert.Equal(t, e.now, active[0].AllocatedAt)
}

func TestManage_RepeatAllocationIsIdempotent(t *testing.T) {
	e := newManagedEngine(t)
	req := allocation.ManageRequest{
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 1, Reason: allocation.ReasonManual},
		},
	}

	_, err := e.manager.Manage(context.Background(), testActor, "LEI", req)
	require.NoError(t, err)
	first := activeFor(t, e, "A1234AA")

	result, err := e.manager.Manage(context.Background(), testActor, "LEI", req)
	require.NoError(t, err)

	assert.Empty(t, result.Allocated)
	assert.Equal(t, []allocation.PersonID{"A1234AA"}, result.Ignored)
	assert.Equal(t, first, activeFor(t, e, "A1234AA"), "second call must not mutate")
}

func TestManage_ReassignmentDeallocatesWithOverride(t *testing.T) {
	e := newManagedEngine(t)
	_, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 1, Reason: allocation.ReasonManual},
		},
	})
	require.NoError(t, err)

	_, err = e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 2, Reason: allocation.ReasonManual},
		},
	})
	require.NoError(t, err)

	active := activeFor(t, e, "A1234AA")
	require.Len(t, active, 1, "at most one active assignment per person")
	assert.Equal(t, allocation.StaffID(2), active[0].StaffID)

	history, err := e.store.FindByPeople(context.Background(), allocation.PolicyKeyWorker,
		[]allocation.PersonID{"A1234AA"})
	require.NoError(t, err)
	require.Len(t, history, 2)
	var old allocation.Assignment
	for _, a := range history {
		if !a.Active {
			old = a
		}
	}
	require.NotNil(t, old.DeallocationReason)
	assert.Equal(t, allocation.ReasonOverride, *old.DeallocationReason)
	assert.Equal(t, "tester", *old.DeallocatedBy)
}

func TestManage_StaleDeallocationIgnored(t *testing.T) {
	// Deallocation targets staff 2 while the active assignment names staff 1:
	// stale intent, skipped; the allocation to staff 3 still applies.
	e := newManagedEngine(t)
	_, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 1, Reason: allocation.ReasonManual},
		},
	})
	require.NoError(t, err)

	result, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Deallocations: []allocation.ProposedDeallocation{
			{PersonID: "A1234AA", StaffID: 2, Reason: allocation.ReasonManualDealloc},
		},
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 3, Reason: allocation.ReasonManual},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []allocation.PersonID{"A1234AA"}, result.Ignored, "stale deallocation skipped")
	assert.Equal(t, []allocation.PersonID{"A1234AA"}, result.Allocated)

	active := activeFor(t, e, "A1234AA")
	require.Len(t, active, 1)
	assert.Equal(t, allocation.StaffID(3), active[0].StaffID)
}

func TestManage_DeallocationAppliedBeforeAllocation(t *testing.T) {
	// Deallocate from staff 1 and allocate to staff 2 in one batch: the
	// allocation step must see the post-deallocation state, so the result is
	// a plain new assignment, not an override.
	e := newManagedEngine(t)
	_, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 1, Reason: allocation.ReasonManual},
		},
	})
	require.NoError(t, err)

	result, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Deallocations: []allocation.ProposedDeallocation{
			{PersonID: "A1234AA", StaffID: 1, Reason: allocation.ReasonManualDealloc},
		},
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 2, Reason: allocation.ReasonManual},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []allocation.PersonID{"A1234AA"}, result.Deallocated)
	assert.Equal(t, []allocation.PersonID{"A1234AA"}, result.Allocated)

	history, err := e.store.FindByPeople(context.Background(), allocation.PolicyKeyWorker,
		[]allocation.PersonID{"A1234AA"})
	require.NoError(t, err)
	for _, a := range history {
		if !a.Active {
			assert.Equal(t, allocation.ReasonManualDealloc, *a.DeallocationReason,
				"deallocation reason must come from the request, not OVERRIDE")
		}
	}
}

func TestManage_ProvisionalAssignmentSuperseded(t *testing.T) {
	e := newManagedEngine(t)
	e.seedAssignment(allocation.Assignment{
		PersonID: "A1234AA", PrisonCode: "LEI", StaffID: 2, Policy: allocation.PolicyKeyWorker,
		Active: false, Provisional: true,
		AllocatedAt: time.Date(2027, time.March, 1, 9, 0, 0, 0, time.UTC),
		AllocationReason: allocation.ReasonAuto,
	})

	_, err := e.manager.Manage(context.Background(), testActor, "LEI", allocation.ManageRequest{
		Allocations: []allocation.ProposedAllocation{
			{PersonID: "A1234AA", StaffID: 1, Reason: allocation.ReasonManual},
		},
	})
	require.NoError(t, err)

	history, err := e.store.FindByPeople(context.Background(), allocation.PolicyKeyWorker,
		[]allocation.PersonID{"A1234AA"})
	require.NoError(t, err)
	require.Len(t, history, 1, "provisional row removed")
	assert.False(t, history[0].Provisional)
	assert.Equal(t, allocation.StaffID(1), history[0].StaffID)
}

func TestManage_InvariantHoldsAcrossBatches(t *testing.T) {
	// A churn of manage calls never leaves more than one active assignment
	// per person.
	e := newManagedEngine(t)
	steps := []allocation.ManageRequest{
		{Allocations: []allocation.ProposedAllocation{{PersonID: "A1234AA", StaffID: 1, Reason: allocation.ReasonManual}}},
		{Allocations: []allocation.ProposedAllocation{{PersonID: "A1234AA", StaffID: 2, Reason: allocation.ReasonManual}}},
		{Deallocations: []allocation.ProposedDeallocation{{PersonID: "A1234AA", StaffID: 2, Reason: allocation.ReasonManualDealloc}}},
		{Allocations: []allocation.ProposedAllocation{{PersonID: "A1234AA", StaffID: 3, Reason: allocation.ReasonManual}}},
		{Allocations: []allocation.ProposedAllocation{{PersonID: "A1234AA", StaffID: 3, Reason: allocation.ReasonManual}}},
	}

	for i, req := range steps {
		_, err := e.manager.Manage(context.Background(), testActor, "LEI", req)
		require.NoError(t, err, "step %d", i)
		assert.LessOrEqual(t, len(activeFor(t, e, "A1234AA")), 1, "step %d", i)
	}

	active := activeFor(t, e, "A1234AA")
	require.Len(t, active, 1)
	assert.Equal(t, allocation.StaffID(3), active[0].StaffID)
}
