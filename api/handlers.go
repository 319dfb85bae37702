/*
handlers.go - HTTP handlers over the allocation engine

PURPOSE:
  Thin translation layer: parse request, build the actor context, call the
  engine, serialize the result. No business rules live here.

ACTOR CONTEXT:
  Every call carries two headers:
    Policy:   KEY_WORKER | PERSONAL_OFFICER
    Username: the acting user (recorded on allocatedBy/deallocatedBy)
  The policy is resolved once per request via the factory and passed into
  the engine as an explicit allocation.ActorContext.

ERROR HANDLING:
  Engine error kinds map onto HTTP statuses:
  - 400: invalid request (empty batch, bad body)
  - 409: conflict (concurrent active assignment)
  - 404: not found
  - 422: failed precondition (prison disabled, residency, eligibility,
         missing reference data)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/keyworker-engine/allocation"
	"github.com/warp/keyworker-engine/factory"
)

const timeFormat = time.RFC3339

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Recommender   *allocation.Recommender
	Manager       *allocation.Manager
	Snapshots     *allocation.SnapshotBuilder
	Deallocations *allocation.DeallocationService
	Assignments   allocation.AssignmentStore
	StaffConfigs  allocation.StaffConfigStore
	PrisonConfigs allocation.PrisonConfigStore
	ConfigFactory *factory.ConfigFactory
	Log           *zap.Logger
}

// actor builds the per-request actor context from headers.
func (h *Handler) actor(r *http.Request) (allocation.ActorContext, error) {
	policy, err := factory.PolicyFor(allocation.PolicyCode(r.Header.Get("Policy")))
	if err != nil {
		return allocation.ActorContext{}, err
	}
	username := r.Header.Get("Username")
	if username == "" {
		username = allocation.SystemUsername
	}
	return allocation.ActorContext{Username: username, Policy: policy}, nil
}

// =============================================================================
// RECOMMENDATION AND CAPACITY
// =============================================================================

// GetRecommendations runs one advisory recommendation pass.
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	prison := allocation.PrisonCode(chi.URLParam(r, "prisonCode"))

	result, err := h.Recommender.Recommend(r.Context(), actor, prison)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	dto := RecommendationResultDTO{
		PrisonCode:       string(result.PrisonCode),
		Policy:           string(result.Policy),
		Recommendations:  []RecommendationDTO{},
		NoAvailableStaff: []string{},
	}
	for _, rec := range result.Recommendations {
		dto.Recommendations = append(dto.Recommendations, RecommendationDTO{
			PersonID:  string(rec.PersonID),
			FirstName: rec.FirstName,
			LastName:  rec.LastName,
			StaffID:   int64(rec.StaffID),
		})
	}
	for _, id := range result.NoAvailableStaff {
		dto.NoAvailableStaff = append(dto.NoAvailableStaff, string(id))
	}
	h.writeJSON(w, http.StatusOK, dto)
}

// GetCapacitySnapshot returns the staff capacity records in priority order.
func (h *Handler) GetCapacitySnapshot(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	prison := allocation.PrisonCode(chi.URLParam(r, "prisonCode"))

	snapshot, err := h.Snapshots.Build(r.Context(), actor, prison)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	out := []StaffCapacityDTO{}
	for _, rec := range snapshot.Ordered() {
		dto := StaffCapacityDTO{
			StaffID:         int64(rec.StaffID),
			FirstName:       rec.FirstName,
			LastName:        rec.LastName,
			Capacity:        rec.Capacity,
			AllocationCount: rec.AllocationCount,
			Availability:    rec.Availability().String(),
		}
		if rec.LastAutoAllocationAt != nil {
			v := rec.LastAutoAllocationAt.Format(timeFormat)
			dto.LastAutoAllocationAt = &v
		}
		out = append(out, dto)
	}
	h.writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// MANAGE
// =============================================================================

// ManageAllocations applies a validated allocation/deallocation batch.
func (h *Handler) ManageAllocations(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	prison := allocation.PrisonCode(chi.URLParam(r, "prisonCode"))

	var body ManageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	req := allocation.ManageRequest{}
	for _, a := range body.Allocations {
		req.Allocations = append(req.Allocations, allocation.ProposedAllocation{
			PersonID: allocation.PersonID(a.PersonID),
			StaffID:  allocation.StaffID(a.StaffID),
			Reason:   a.Reason,
		})
	}
	for _, d := range body.Deallocations {
		req.Deallocations = append(req.Deallocations, allocation.ProposedDeallocation{
			PersonID: allocation.PersonID(d.PersonID),
			StaffID:  allocation.StaffID(d.StaffID),
			Reason:   d.Reason,
		})
	}

	result, err := h.Manager.Manage(r.Context(), actor, prison, req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	dto := ManageResultDTO{Allocated: []string{}, Deallocated: []string{}, Ignored: []string{}}
	for _, id := range result.Allocated {
		dto.Allocated = append(dto.Allocated, string(id))
	}
	for _, id := range result.Deallocated {
		dto.Deallocated = append(dto.Deallocated, string(id))
	}
	for _, id := range result.Ignored {
		dto.Ignored = append(dto.Ignored, string(id))
	}
	h.writeJSON(w, http.StatusOK, dto)
}

// GetCurrentAllocation returns a person's active assignment, if any.
func (h *Handler) GetCurrentAllocation(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	person := allocation.PersonID(chi.URLParam(r, "personId"))

	active, err := h.Assignments.FindActiveByPeople(r.Context(), actor.Policy.Code(), []allocation.PersonID{person})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if len(active) == 0 {
		h.writeError(w, http.StatusNotFound, allocation.ErrAssignmentNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, toAssignmentDTO(active[0]))
}

// =============================================================================
// PRISON CONFIGURATION
// =============================================================================

// PutPrisonConfig validates and stores a prison configuration document.
func (h *Handler) PutPrisonConfig(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := h.ConfigFactory.ParsePrisonConfig(string(raw))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if string(cfg.PrisonCode) != chi.URLParam(r, "prisonCode") {
		h.writeError(w, http.StatusBadRequest, errPathBodyMismatch)
		return
	}
	if err := h.PrisonConfigs.SavePrisonConfig(r.Context(), *cfg); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

// =============================================================================
// DOMAIN EVENT ENDPOINTS - Deallocation triggers
// =============================================================================

// PostReleaseEvent handles a person leaving custody.
func (h *Handler) PostReleaseEvent(w http.ResponseWriter, r *http.Request) {
	var body ReleaseEventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.forEachPolicy(w, func(actor allocation.ActorContext) error {
		return h.Deallocations.PersonReleased(r.Context(), actor, allocation.PersonID(body.PersonID))
	})
}

// PostTransferEvent handles a person moving prisons.
func (h *Handler) PostTransferEvent(w http.ResponseWriter, r *http.Request) {
	var body TransferEventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.forEachPolicy(w, func(actor allocation.ActorContext) error {
		return h.Deallocations.PersonTransferred(r.Context(), actor,
			allocation.PersonID(body.PersonID), allocation.PrisonCode(body.NewPrison))
	})
}

// PostMergeEvent handles two person identifiers being merged.
func (h *Handler) PostMergeEvent(w http.ResponseWriter, r *http.Request) {
	var body MergeEventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.forEachPolicy(w, func(actor allocation.ActorContext) error {
		return h.Deallocations.PeopleMerged(r.Context(), actor,
			allocation.PersonID(body.RemovedPersonID), allocation.PersonID(body.SurvivorPersonID))
	})
}

// PutStaffConfig updates a staff member's configuration, optionally
// deallocating their active assignments in the same request.
func (h *Handler) PutStaffConfig(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	prison := allocation.PrisonCode(chi.URLParam(r, "prisonCode"))

	var body StaffStatusEventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg := allocation.StaffConfig{
		StaffID:             allocation.StaffID(body.StaffID),
		Policy:              actor.Policy.Code(),
		Capacity:            body.Capacity,
		Status:              allocation.StaffStatus(body.Status),
		AllowAutoAllocation: body.AllowAutoAllocation,
	}
	if err := h.StaffConfigs.SaveStaffConfig(r.Context(), cfg); err != nil {
		h.writeEngineError(w, err)
		return
	}
	if body.DeactivateAllocations {
		if err := h.Deallocations.StaffDeactivated(r.Context(), actor, prison, cfg.StaffID); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// forEachPolicy runs an event trigger under every policy; events are not
// policy-scoped at the source.
func (h *Handler) forEachPolicy(w http.ResponseWriter, fn func(allocation.ActorContext) error) {
	for _, p := range factory.Policies() {
		if err := fn(allocation.SystemActor(p)); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

var errPathBodyMismatch = &pathBodyMismatchError{}

type pathBodyMismatchError struct{}

func (*pathBodyMismatchError) Error() string {
	return "prison code in body does not match path"
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	if v == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && h.Log != nil {
		h.Log.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, ErrorDTO{Status: status, Message: err.Error()})
}

// writeEngineError maps engine error kinds onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case allocation.IsClientError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case allocation.IsConflict(err):
		h.writeError(w, http.StatusConflict, err)
	case allocation.IsNotFound(err):
		h.writeError(w, http.StatusNotFound, err)
	case allocation.IsPreconditionFailure(err):
		h.writeError(w, http.StatusUnprocessableEntity, err)
	default:
		if h.Log != nil {
			h.Log.Error("internal error", zap.Error(err))
		}
		h.writeError(w, http.StatusInternalServerError, err)
	}
}
