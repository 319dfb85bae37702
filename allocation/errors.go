/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (API layer, event handlers) map these onto transport status codes.

ERROR CATEGORIES:
  1. Invalid request   - Empty batches, malformed input
  2. Failed precondition - Prison disabled, wrong residency, ineligible staff,
                           missing reference data
  3. Not found         - Patch-style operations against absent rows
  4. Conflict          - Concurrent active-assignment creation, surfaced by
                         the persistence layer's uniqueness guarantee

USAGE:
  Callers distinguish kinds with the helpers:

    if allocation.IsPreconditionFailure(err) {
        // 4xx with offending identifiers in the message
    }

SEE ALSO:
  - manager.go: Produces every precondition error before mutating anything
  - referencedata.go: Wraps ErrReferenceDataNotFound with domain/code context
*/
package allocation

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmptyRequest is returned when a manage call carries neither
	// allocations nor deallocations.
	ErrEmptyRequest = errors.New("at least one allocation or deallocation must be provided")

	// ErrPrisonNotEnabled is returned when the target prison is not enabled
	// for the acting policy.
	ErrPrisonNotEnabled = errors.New("prison not enabled for policy")

	// ErrPersonNotAtPrison is returned when an allocation references a person
	// not currently resident at the target prison.
	ErrPersonNotAtPrison = errors.New("person not resident at prison")

	// ErrStaffNotAllocatable is returned when a staff id is not on the
	// eligible roster for the prison and policy.
	ErrStaffNotAllocatable = errors.New("staff not allocatable for prison")

	// ErrStaffNotActive is returned when a referenced staff member's
	// configuration excludes them from holding allocations.
	ErrStaffNotActive = errors.New("staff not in an active state")

	// ErrReferenceDataNotFound indicates missing seed data, not bad user
	// input. Surfaced as a failed precondition so operators can tell the two
	// apart.
	ErrReferenceDataNotFound = errors.New("reference data not found")

	// ErrAssignmentNotFound is returned when presence of an assignment was
	// assumed by the caller.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrStaffConfigNotFound is returned by patch-style updates against a
	// staff configuration that does not exist.
	ErrStaffConfigNotFound = errors.New("staff configuration not found")

	// ErrActiveAssignmentExists is the conflict surfaced when two writers
	// race to create an active assignment for the same person and policy.
	ErrActiveAssignmentExists = errors.New("person already has an active assignment")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the offending identifiers
// =============================================================================

// ResidencyError reports people who are not at the prison the request named.
type ResidencyError struct {
	PrisonCode PrisonCode
	PersonIDs  []PersonID
}

func (e *ResidencyError) Error() string {
	ids := make([]string, len(e.PersonIDs))
	for i, id := range e.PersonIDs {
		ids[i] = string(id)
	}
	return fmt.Sprintf("a provided person is not resident at %s: %s",
		e.PrisonCode, strings.Join(ids, ", "))
}

func (e *ResidencyError) Unwrap() error { return ErrPersonNotAtPrison }

// StaffEligibilityError reports staff ids that cannot receive allocations at
// the prison, either because they are off the roster or inactive.
type StaffEligibilityError struct {
	PrisonCode PrisonCode
	StaffIDs   []StaffID
	Inactive   bool // true when the staff exist but their status excludes them
}

func (e *StaffEligibilityError) Error() string {
	if e.Inactive {
		return fmt.Sprintf("a provided staff id is not in an allocatable state for %s: %v",
			e.PrisonCode, e.StaffIDs)
	}
	return fmt.Sprintf("a provided staff id is not allocatable for %s: %v",
		e.PrisonCode, e.StaffIDs)
}

func (e *StaffEligibilityError) Unwrap() error {
	if e.Inactive {
		return ErrStaffNotActive
	}
	return ErrStaffNotAllocatable
}

// ReferenceDataError identifies the missing (domain, code) pair.
type ReferenceDataError struct {
	Domain ReferenceDomain
	Code   string
}

func (e *ReferenceDataError) Error() string {
	return fmt.Sprintf("reference data not found: %s/%s", e.Domain, e.Code)
}

func (e *ReferenceDataError) Unwrap() error { return ErrReferenceDataNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyRequest)
}

// IsPreconditionFailure returns true for request-level preconditions that
// failed before any mutation began.
func IsPreconditionFailure(err error) bool {
	return errors.Is(err, ErrPrisonNotEnabled) ||
		errors.Is(err, ErrPersonNotAtPrison) ||
		errors.Is(err, ErrStaffNotAllocatable) ||
		errors.Is(err, ErrStaffNotActive) ||
		errors.Is(err, ErrReferenceDataNotFound)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAssignmentNotFound) ||
		errors.Is(err, ErrStaffConfigNotFound)
}

// IsConflict returns true for concurrent-writer conflicts.
func IsConflict(err error) bool {
	return errors.Is(err, ErrActiveAssignmentExists)
}
