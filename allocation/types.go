/*
Package allocation provides the core staff allocation engine.

PURPOSE:
  This package contains the types and algorithms for assigning accountable
  staff members (key workers or personal officers, depending on the active
  policy) to individual people in custody, and for keeping that assignment
  consistent over time as capacity, staff availability, and location change.

KEY CONCEPTS IN THIS FILE (types.go):
  - Assignment: A person-to-staff relationship record under one policy
  - StaffCapacity: A staff member's load, derived at query time
  - Policy: The allocation scheme in force (closed set, one impl per policy)
  - Person/StaffSummary: Read models supplied by upstream collaborators

DESIGN PRINCIPLES:
  1. One active Assignment per (person, policy) - the engine's core invariant
  2. Determinism: identical inputs always produce identical recommendations
  3. Explicit context: the acting user and policy are parameters, never globals
  4. Advisory recommendation: only the Manager durably mutates state

USAGE:
  rec := allocation.Recommender{...}
  result, err := rec.Recommend(ctx, actor, "LEI")
  for _, r := range result.Recommendations {
      fmt.Printf("%s -> %d\n", r.PersonID, r.StaffID)
  }

SEE ALSO:
  - snapshot.go:  Capacity snapshot and its priority ordering
  - recommend.go: The recommendation algorithm
  - manager.go:   Validated, atomic allocation/deallocation batches
  - deallocate.go: Event-driven deallocation triggers
*/
package allocation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// PersonID is the person identifier (prison number), e.g. "A1234BC".
type PersonID string

// StaffID is the numeric staff identifier from the staff directory.
type StaffID int64

// PrisonCode is the three-letter establishment code, e.g. "LEI".
type PrisonCode string

// PolicyCode discriminates persisted rows by allocation scheme.
type PolicyCode string

const (
	PolicyKeyWorker       PolicyCode = "KEY_WORKER"
	PolicyPersonalOfficer PolicyCode = "PERSONAL_OFFICER"
)

// =============================================================================
// POLICY - Closed variant, one implementation per allocation scheme
// =============================================================================

// Policy is the allocation scheme in force for a request. Implementations
// live in the keyworker and personalofficer packages; the engine never
// branches on a policy enum, it calls through this interface.
//
// Domain packages implement this:
//
//	// In keyworker/policy.go
//	type Policy struct{}
//	func (Policy) Code() allocation.PolicyCode { return allocation.PolicyKeyWorker }
type Policy interface {
	// Code returns the persisted discriminator for this policy.
	Code() PolicyCode

	// Name returns the human-readable scheme name.
	Name() string

	// StaffRole returns the role code staff must hold at a prison to be
	// eligible under this policy.
	StaffRole() string

	// SessionCaseNoteType returns the case-note type recorded when a staff
	// member holds a session with an assigned person.
	SessionCaseNoteType() string

	// DefaultPrisonConfig returns the configuration that applies to a prison
	// with no explicit configuration row.
	DefaultPrisonConfig(prison PrisonCode) PrisonConfig
}

// =============================================================================
// ASSIGNMENT - One person-to-staff relationship under one policy
// =============================================================================

// Assignment records a person-to-staff relationship. At most one Assignment
// per (PersonID, Policy) may have Active=true at any time; new relationships
// are new rows, a deallocated row is never reopened.
type Assignment struct {
	ID         string
	PersonID   PersonID
	PrisonCode PrisonCode
	StaffID    StaffID
	Policy     PolicyCode

	Active      bool
	Provisional bool // placeholder row, superseded when a real allocation lands

	AllocatedAt      time.Time
	AllocatedBy      string
	AllocationReason string // reference data code, DomainAllocationReason

	DeallocatedAt      *time.Time
	DeallocatedBy      *string
	DeallocationReason *string // reference data code, DomainDeallocationReason
}

// Deallocate transitions the assignment to inactive in place. The row keeps
// its history fields; callers persist the mutation.
func (a *Assignment) Deallocate(reason, by string, at time.Time) {
	a.Active = false
	a.Provisional = false
	a.DeallocatedAt = &at
	a.DeallocatedBy = &by
	a.DeallocationReason = &reason
}

// =============================================================================
// STAFF CAPACITY - Derived load record, never stored independently
// =============================================================================

// StaffCapacity joins a roster entry, staff configuration, live active
// allocation count, and the most recent auto-allocation timestamp. It is
// composed at query time by the SnapshotBuilder and mutated only inside a
// CapacitySnapshot during a recommendation pass.
type StaffCapacity struct {
	StaffID   StaffID
	FirstName string
	LastName  string

	// Capacity is the soft target for concurrent active assignments. Manual
	// and continuity assignments may exceed it; auto-allocation never does.
	Capacity int

	AllocationCount int

	// LastAutoAllocationAt is nil for staff who have never received an
	// auto-generated assignment.
	LastAutoAllocationAt *time.Time
}

// Availability is the primary ranking key: AllocationCount / Capacity as an
// exact decimal. Zero when either term is zero, so new or uncapped staff sort
// to the front.
func (sc *StaffCapacity) Availability() decimal.Decimal {
	if sc.AllocationCount == 0 || sc.Capacity == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(sc.AllocationCount)).
		Div(decimal.NewFromInt(int64(sc.Capacity)))
}

// HasSpareCapacity reports whether an auto-allocation may target this staff
// member without exceeding the configured capacity.
func (sc *StaffCapacity) HasSpareCapacity() bool {
	return sc.AllocationCount < sc.Capacity
}

// =============================================================================
// READ MODELS - Supplied by upstream collaborators
// =============================================================================

// Person is the search read model used to drive recommendation.
type Person struct {
	ID        PersonID
	FirstName string
	LastName  string

	// HighComplexityOfNeed people are excluded from auto-allocation.
	HighComplexityOfNeed bool
}

// StaffSummary is a roster entry: a staff member holding the policy's role
// at a prison.
type StaffSummary struct {
	StaffID   StaffID
	FirstName string
	LastName  string
}

// StaffStatus is the lifecycle state of a staff member's configuration.
type StaffStatus string

const (
	StaffActive      StaffStatus = "ACTIVE"
	StaffUnavailable StaffStatus = "UNAVAILABLE"
	StaffInactive    StaffStatus = "INACTIVE"
)

// StaffConfig is the per-staff configuration row. Absent rows mean defaults:
// active, prison-configured capacity, auto-allocation allowed.
type StaffConfig struct {
	StaffID             StaffID
	Policy              PolicyCode
	Capacity            int // 0 = use the prison configuration's capacity
	Status              StaffStatus
	AllowAutoAllocation bool
}

// IsActive reports whether the staff member may hold allocations at all.
func (c StaffConfig) IsActive() bool { return c.Status == StaffActive }
