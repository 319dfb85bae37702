/*
referencedata.go - Canonical (domain, code) reference records

PURPOSE:
  Allocation and deallocation reasons are reference data: immutable
  (domain, code) -> description records seeded at deploy time. Every reason
  code on an incoming request must resolve before any mutation begins.
  A failed resolution is a configuration error (missing seed data), not a
  user validation failure, and unwraps to ErrReferenceDataNotFound so the
  API layer can surface it distinctly.

SEE ALSO:
  - manager.go:    Resolves request reason codes up front
  - deallocate.go: Resolves trigger reason codes
  - keyworker/policy.go, personalofficer/policy.go: Seed records
*/
package allocation

import "context"

// =============================================================================
// DOMAINS AND WELL-KNOWN CODES
// =============================================================================

// ReferenceDomain namespaces reference data codes.
type ReferenceDomain string

const (
	DomainAllocationReason   ReferenceDomain = "ALLOCATION_REASON"
	DomainDeallocationReason ReferenceDomain = "DEALLOCATION_REASON"
)

// Allocation reason codes.
const (
	ReasonAuto   = "AUTO"
	ReasonManual = "MANUAL"
)

// Deallocation reason codes.
const (
	ReasonOverride          = "OVERRIDE"
	ReasonReleased          = "RELEASED"
	ReasonTransfer          = "TRANSFER"
	ReasonStaffStatusChange = "STAFF_STATUS_CHANGE"
	ReasonMerged            = "MERGED"
	ReasonManualDealloc     = "MANUAL"
)

// ReferenceData is a resolved (domain, code) record. Immutable once resolved
// for a request.
type ReferenceData struct {
	Domain      ReferenceDomain
	Code        string
	Description string
}

// =============================================================================
// RESOLVER
// =============================================================================

// ReferenceDataStore is the persistence boundary for reference data.
// Resolve returns (nil, nil) when the pair is unknown.
type ReferenceDataStore interface {
	Resolve(ctx context.Context, domain ReferenceDomain, code string) (*ReferenceData, error)
}

// Resolver turns missing reference data into a hard precondition error.
type Resolver struct {
	Store ReferenceDataStore
}

// Resolve looks up a (domain, code) pair. Failure means missing seed data.
func (r *Resolver) Resolve(ctx context.Context, domain ReferenceDomain, code string) (*ReferenceData, error) {
	rd, err := r.Store.Resolve(ctx, domain, code)
	if err != nil {
		return nil, err
	}
	if rd == nil {
		return nil, &ReferenceDataError{Domain: domain, Code: code}
	}
	return rd, nil
}
