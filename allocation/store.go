/*
store.go - Persistence and collaborator boundaries for the engine

PURPOSE:
  Defines the interfaces between the engine and (a) its own persistence
  (assignments, staff configuration) and (b) the external systems it reads
  from (person search, person location, staff roster). The engine is a pure
  library; implementations live in store/sqlite, allocation/store (memory),
  and clients (HTTP).

ATOMICITY CONTRACT:
  WithTx is the Manager's transaction boundary. Every mutation of a manage
  batch happens inside one WithTx callback: all deallocations, all overrides,
  all new allocations commit or roll back together. Implementations must also
  enforce uniqueness of "one active assignment per (person, policy)" so that
  two concurrent writers never both insert one; the loser receives
  ErrActiveAssignmentExists.

SEE ALSO:
  - store/sqlite/sqlite.go: Production implementation
  - allocation/store/memory.go: In-memory implementation for tests/dev
  - clients/: HTTP implementations of the collaborator lookups
*/
package allocation

import (
	"context"
	"time"
)

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

// AssignmentStore persists Assignment rows. All queries are policy-scoped:
// one policy's data is never visible to another.
type AssignmentStore interface {
	// FindActiveByPeople returns the active assignment, if any, for each of
	// the given people under the policy. At most one row per person.
	FindActiveByPeople(ctx context.Context, policy PolicyCode, people []PersonID) ([]Assignment, error)

	// FindActiveByStaff returns every active assignment held by the staff
	// member at the prison.
	FindActiveByStaff(ctx context.Context, policy PolicyCode, prison PrisonCode, staffID StaffID) ([]Assignment, error)

	// FindByPeople returns full assignment history (active and inactive) for
	// the given people, across all prisons.
	FindByPeople(ctx context.Context, policy PolicyCode, people []PersonID) ([]Assignment, error)

	// CountActiveByStaff returns the live active-allocation count per staff
	// id at the prison. Staff with no active assignments may be absent.
	CountActiveByStaff(ctx context.Context, policy PolicyCode, prison PrisonCode, staffIDs []StaffID) (map[StaffID]int, error)

	// LatestAutoAllocationAt returns, per staff id, the timestamp of the most
	// recent assignment created with the AUTO reason. Staff who never
	// received one are absent.
	LatestAutoAllocationAt(ctx context.Context, policy PolicyCode, prison PrisonCode, staffIDs []StaffID) (map[StaffID]time.Time, error)

	// Save persists a new or mutated assignment.
	Save(ctx context.Context, a *Assignment) error

	// SaveAll persists several assignments; only meaningful inside WithTx.
	SaveAll(ctx context.Context, as []*Assignment) error

	// DeleteProvisional removes placeholder assignments for the given people.
	DeleteProvisional(ctx context.Context, policy PolicyCode, people []PersonID) error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(AssignmentStore) error) error
}

// =============================================================================
// STAFF CONFIGURATION STORE
// =============================================================================

// StaffConfigStore persists per-staff configuration. Absent rows mean the
// defaults in StaffConfig's doc comment.
type StaffConfigStore interface {
	// FindConfigs returns configuration rows for the given staff ids under
	// the policy. Staff without a row are absent from the map.
	FindConfigs(ctx context.Context, policy PolicyCode, staffIDs []StaffID) (map[StaffID]StaffConfig, error)

	// SaveStaffConfig inserts or replaces a configuration row.
	SaveStaffConfig(ctx context.Context, cfg StaffConfig) error
}

// =============================================================================
// EXTERNAL COLLABORATORS - Read-only lookups
// =============================================================================

// PersonLocation reports where people are currently resident.
type PersonLocation interface {
	// FindResidents returns the current prison for each person found in
	// custody. People not in custody are absent from the map.
	FindResidents(ctx context.Context, people []PersonID) (map[PersonID]PrisonCode, error)
}

// StaffRoster lists staff holding a role at a prison.
type StaffRoster interface {
	FindEligibleStaff(ctx context.Context, prison PrisonCode, role string) ([]StaffSummary, error)
}

// PersonSearch lists people at a prison who are candidates for allocation.
type PersonSearch interface {
	// FindAllocatablePeople returns everyone resident at the prison who could
	// hold an assignment. Complexity-of-need and existing-assignment
	// filtering is the Recommender's job.
	FindAllocatablePeople(ctx context.Context, prison PrisonCode) ([]Person, error)
}
