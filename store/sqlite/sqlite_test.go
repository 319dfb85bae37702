package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/keyworker-engine/allocation"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testAssignment(id string, person allocation.PersonID, staffID allocation.StaffID, active bool) *allocation.Assignment {
	return &allocation.Assignment{
		ID:               id,
		PersonID:         person,
		PrisonCode:       "LEI",
		StaffID:          staffID,
		Policy:           allocation.PolicyKeyWorker,
		Active:           active,
		AllocatedAt:      time.Date(2027, time.March, 1, 9, 30, 0, 0, time.UTC),
		AllocatedBy:      "tester",
		AllocationReason: allocation.ReasonManual,
	}
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestAssignmentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := testAssignment("a-1", "A1234AA", 7, true)
	require.NoError(t, store.Save(ctx, in))

	out, err := store.FindActiveByPeople(ctx, allocation.PolicyKeyWorker,
		[]allocation.PersonID{"A1234AA"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, *in, out[0])
}

func TestSaveUpdatesTransitionFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testAssignment("a-1", "A1234AA", 7, true)
	require.NoError(t, store.Save(ctx, a))

	a.Deallocate(allocation.ReasonReleased, "tester", time.Date(2027, time.March, 2, 8, 0, 0, 0, time.UTC))
	require.NoError(t, store.Save(ctx, a))

	active, err := store.FindActiveByPeople(ctx, allocation.PolicyKeyWorker,
		[]allocation.PersonID{"A1234AA"})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := store.FindByPeople(ctx, allocation.PolicyKeyWorker,
		[]allocation.PersonID{"A1234AA"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)
	require.NotNil(t, all[0].DeallocationReason)
	assert.Equal(t, allocation.ReasonReleased, *all[0].DeallocationReason)
	assert.Equal(t, "tester", *all[0].DeallocatedBy)
}

func TestOneActiveAssignmentPerPerson(t *testing.T) {
	// The partial unique index is the last line of defence under concurrency:
	// a second active row for the same (person, policy) must be rejected with
	// the engine's conflict error.
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testAssignment("a-1", "A1234AA", 7, true)))

	err := store.Save(ctx, testAssignment("a-2", "A1234AA", 8, true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, allocation.ErrActiveAssignmentExists))

	// Inactive history rows are unconstrained.
	require.NoError(t, store.Save(ctx, testAssignment("a-3", "A1234AA", 8, false)))

	// A second policy is a separate allocation stream.
	other := testAssignment("a-4", "A1234AA", 8, true)
	other.Policy = allocation.PolicyPersonalOfficer
	require.NoError(t, store.Save(ctx, other))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx allocation.AssignmentStore) error {
		if err := tx.Save(ctx, testAssignment("a-1", "A1234AA", 7, true)); err != nil {
			return err
		}
		if err := tx.Save(ctx, testAssignment("a-2", "B2345BB", 7, true)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	out, err := store.FindActiveByPeople(ctx, allocation.PolicyKeyWorker,
		[]allocation.PersonID{"A1234AA", "B2345BB"})
	require.NoError(t, err)
	assert.Empty(t, out, "nothing from the failed transaction may be visible")
}

func TestWithTxCommits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx allocation.AssignmentStore) error {
		return tx.SaveAll(ctx, []*allocation.Assignment{
			testAssignment("a-1", "A1234AA", 7, true),
			testAssignment("a-2", "B2345BB", 7, true),
		})
	})
	require.NoError(t, err)

	out, err := store.FindActiveByPeople(ctx, allocation.PolicyKeyWorker,
		[]allocation.PersonID{"A1234AA", "B2345BB"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestCountActiveByStaff(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testAssignment("a-1", "A0001AA", 7, true)))
	require.NoError(t, store.Save(ctx, testAssignment("a-2", "A0002AA", 7, true)))
	require.NoError(t, store.Save(ctx, testAssignment("a-3", "A0003AA", 7, false))) // inactive
	require.NoError(t, store.Save(ctx, testAssignment("a-4", "A0004AA", 8, true)))

	counts, err := store.CountActiveByStaff(ctx, allocation.PolicyKeyWorker, "LEI",
		[]allocation.StaffID{7, 8, 9})
	require.NoError(t, err)

	assert.Equal(t, 2, counts[7])
	assert.Equal(t, 1, counts[8])
	_, present := counts[9]
	assert.False(t, present, "staff with no active rows are absent, not zero")
}

func TestLatestAutoAllocationAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := testAssignment("a-1", "A0001AA", 7, false)
	older.AllocationReason = allocation.ReasonAuto
	older.AllocatedAt = time.Date(2027, time.January, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, older))

	newer := testAssignment("a-2", "A0002AA", 7, true)
	newer.AllocationReason = allocation.ReasonAuto
	newer.AllocatedAt = time.Date(2027, time.February, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, newer))

	// Manual allocations never count towards the auto-allocation timestamp.
	manual := testAssignment("a-3", "A0003AA", 8, true)
	manual.AllocatedAt = time.Date(2027, time.March, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, manual))

	latest, err := store.LatestAutoAllocationAt(ctx, allocation.PolicyKeyWorker, "LEI",
		[]allocation.StaffID{7, 8})
	require.NoError(t, err)

	assert.Equal(t, newer.AllocatedAt, latest[7])
	_, present := latest[8]
	assert.False(t, present)
}

func TestDeleteProvisional(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	provisional := testAssignment("a-1", "A1234AA", 7, false)
	provisional.Provisional = true
	require.NoError(t, store.Save(ctx, provisional))
	require.NoError(t, store.Save(ctx, testAssignment("a-2", "A1234AA", 8, false)))

	require.NoError(t, store.DeleteProvisional(ctx, allocation.PolicyKeyWorker,
		[]allocation.PersonID{"A1234AA"}))

	all, err := store.FindByPeople(ctx, allocation.PolicyKeyWorker,
		[]allocation.PersonID{"A1234AA"})
	require.NoError(t, err)
	require.Len(t, all, 1, "only the provisional row is removed")
	assert.Equal(t, "a-2", all[0].ID)
}

// =============================================================================
// CONFIG AND REFERENCE DATA
// =============================================================================

func TestStaffConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := allocation.StaffConfig{
		StaffID: 7, Policy: allocation.PolicyKeyWorker,
		Capacity: 9, Status: allocation.StaffUnavailable, AllowAutoAllocation: true,
	}
	require.NoError(t, store.SaveStaffConfig(ctx, cfg))

	// Upsert replaces, not duplicates.
	cfg.Status = allocation.StaffActive
	require.NoError(t, store.SaveStaffConfig(ctx, cfg))

	out, err := store.FindConfigs(ctx, allocation.PolicyKeyWorker, []allocation.StaffID{7, 8})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, cfg, out[7])
}

func TestPrisonConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	missing, err := store.FindByCode(ctx, "LEI", allocation.PolicyKeyWorker)
	require.NoError(t, err)
	assert.Nil(t, missing, "unconfigured prison resolves to nil, not an error")

	cfg := allocation.PrisonConfig{
		PrisonCode: "LEI", Policy: allocation.PolicyKeyWorker,
		Enabled: true, Capacity: 6, AllowAutoAllocation: true, SessionFrequencyDays: 7,
	}
	require.NoError(t, store.SavePrisonConfig(ctx, cfg))

	out, err := store.FindByCode(ctx, "LEI", allocation.PolicyKeyWorker)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, cfg, *out)
}

func TestReferenceDataSeedAndResolve(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SeedReferenceData(ctx, []allocation.ReferenceData{
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonReleased, Description: "Released"},
	}))
	// Seeding twice updates in place.
	require.NoError(t, store.SeedReferenceData(ctx, []allocation.ReferenceData{
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonReleased, Description: "Released from custody"},
	}))

	rd, err := store.Resolve(ctx, allocation.DomainDeallocationReason, allocation.ReasonReleased)
	require.NoError(t, err)
	require.NotNil(t, rd)
	assert.Equal(t, "Released from custody", rd.Description)

	missing, err := store.Resolve(ctx, allocation.DomainDeallocationReason, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
