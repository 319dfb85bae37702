/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Structural validation is done in handlers; business validation belongs to
  the engine, which returns the named precondition errors mapped onto HTTP
  statuses in handlers.go.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/keyworker-engine/allocation"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ManageRequest is one batch of proposed allocations and deallocations.
type ManageRequest struct {
	Allocations   []AllocationRequest   `json:"allocations"`
	Deallocations []DeallocationRequest `json:"deallocations"`
}

// AllocationRequest proposes person -> staff.
type AllocationRequest struct {
	PersonID string `json:"personId"`
	StaffID  int64  `json:"staffId"`
	Reason   string `json:"reason"`
}

// DeallocationRequest proposes removal of person -> staff.
type DeallocationRequest struct {
	PersonID string `json:"personId"`
	StaffID  int64  `json:"staffId"`
	Reason   string `json:"reason"`
}

// PrisonConfigRequest enables or updates a prison's configuration; the body
// is the factory's JSON document format.
type PrisonConfigRequest = map[string]any

// Event bodies for the deallocation trigger endpoints.

type ReleaseEventRequest struct {
	PersonID string `json:"personId"`
}

type TransferEventRequest struct {
	PersonID  string `json:"personId"`
	NewPrison string `json:"newPrison"`
}

type MergeEventRequest struct {
	RemovedPersonID  string `json:"removedPersonId"`
	SurvivorPersonID string `json:"survivorPersonId"`
}

type StaffStatusEventRequest struct {
	StaffID               int64  `json:"staffId"`
	Status                string `json:"status"`
	AllowAutoAllocation   bool   `json:"allowAutoAllocation"`
	Capacity              int    `json:"capacity"`
	DeactivateAllocations bool   `json:"deactivateAllocations"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RecommendationDTO is one advisory (person, staff) pair.
type RecommendationDTO struct {
	PersonID  string `json:"personId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	StaffID   int64  `json:"staffId"`
}

// RecommendationResultDTO is the outcome of a recommendation pass.
type RecommendationResultDTO struct {
	PrisonCode       string              `json:"prisonCode"`
	Policy           string              `json:"policy"`
	Recommendations  []RecommendationDTO `json:"recommendations"`
	NoAvailableStaff []string            `json:"noAvailableStaff"`
}

// StaffCapacityDTO is one row of the capacity snapshot, in priority order.
type StaffCapacityDTO struct {
	StaffID              int64   `json:"staffId"`
	FirstName            string  `json:"firstName"`
	LastName             string  `json:"lastName"`
	Capacity             int     `json:"capacity"`
	AllocationCount      int     `json:"allocationCount"`
	Availability         string  `json:"availability"`
	LastAutoAllocationAt *string `json:"lastAutoAllocationAt,omitempty"`
}

// ManageResultDTO reports what a manage batch changed.
type ManageResultDTO struct {
	Allocated   []string `json:"allocated"`
	Deallocated []string `json:"deallocated"`
	Ignored     []string `json:"ignored"`
}

// AssignmentDTO is one assignment row.
type AssignmentDTO struct {
	ID                 string  `json:"id"`
	PersonID           string  `json:"personId"`
	PrisonCode         string  `json:"prisonCode"`
	StaffID            int64   `json:"staffId"`
	Policy             string  `json:"policy"`
	Active             bool    `json:"active"`
	AllocatedAt        string  `json:"allocatedAt"`
	AllocatedBy        string  `json:"allocatedBy"`
	AllocationReason   string  `json:"allocationReason"`
	DeallocatedAt      *string `json:"deallocatedAt,omitempty"`
	DeallocatedBy      *string `json:"deallocatedBy,omitempty"`
	DeallocationReason *string `json:"deallocationReason,omitempty"`
}

// ErrorDTO is the uniform error body.
type ErrorDTO struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func toAssignmentDTO(a allocation.Assignment) AssignmentDTO {
	dto := AssignmentDTO{
		ID:               a.ID,
		PersonID:         string(a.PersonID),
		PrisonCode:       string(a.PrisonCode),
		StaffID:          int64(a.StaffID),
		Policy:           string(a.Policy),
		Active:           a.Active,
		AllocatedAt:      a.AllocatedAt.Format(timeFormat),
		AllocatedBy:      a.AllocatedBy,
		AllocationReason: a.AllocationReason,
	}
	if a.DeallocatedAt != nil {
		v := a.DeallocatedAt.Format(timeFormat)
		dto.DeallocatedAt = &v
	}
	dto.DeallocatedBy = a.DeallocatedBy
	dto.DeallocationReason = a.DeallocationReason
	return dto
}
