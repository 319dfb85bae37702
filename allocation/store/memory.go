// Package store provides in-memory implementations of the allocation
// engine's persistence and collaborator interfaces, for tests and local
// development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/keyworker-engine/allocation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements AssignmentStore, StaffConfigStore, PrisonConfigStore and
// ReferenceDataStore in memory.
type Memory struct {
	mu            sync.RWMutex
	assignments   map[string]allocation.Assignment // by id
	staffConfigs  map[staffKey]allocation.StaffConfig
	prisonConfigs map[prisonKey]allocation.PrisonConfig
	referenceData map[refKey]allocation.ReferenceData
}

type staffKey struct {
	Policy  allocation.PolicyCode
	StaffID allocation.StaffID
}

type prisonKey struct {
	Prison allocation.PrisonCode
	Policy allocation.PolicyCode
}

type refKey struct {
	Domain allocation.ReferenceDomain
	Code   string
}

func NewMemory() *Memory {
	return &Memory{
		assignments:   make(map[string]allocation.Assignment),
		staffConfigs:  make(map[staffKey]allocation.StaffConfig),
		prisonConfigs: make(map[prisonKey]allocation.PrisonConfig),
		referenceData: make(map[refKey]allocation.ReferenceData),
	}
}

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

func (m *Memory) FindActiveByPeople(_ context.Context, policy allocation.PolicyCode, people []allocation.PersonID) ([]allocation.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[allocation.PersonID]bool, len(people))
	for _, id := range people {
		wanted[id] = true
	}
	var out []allocation.Assignment
	for _, a := range m.assignments {
		if a.Policy == policy && a.Active && wanted[a.PersonID] {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out, nil
}

func (m *Memory) FindActiveByStaff(_ context.Context, policy allocation.PolicyCode, prison allocation.PrisonCode, staffID allocation.StaffID) ([]allocation.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []allocation.Assignment
	for _, a := range m.assignments {
		if a.Policy == policy && a.Active && a.PrisonCode == prison && a.StaffID == staffID {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out, nil
}

func (m *Memory) FindByPeople(_ context.Context, policy allocation.PolicyCode, people []allocation.PersonID) ([]allocation.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[allocation.PersonID]bool, len(people))
	for _, id := range people {
		wanted[id] = true
	}
	var out []allocation.Assignment
	for _, a := range m.assignments {
		if a.Policy == policy && wanted[a.PersonID] {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out, nil
}

func (m *Memory) CountActiveByStaff(_ context.Context, policy allocation.PolicyCode, prison allocation.PrisonCode, staffIDs []allocation.StaffID) (map[allocation.StaffID]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[allocation.StaffID]bool, len(staffIDs))
	for _, id := range staffIDs {
		wanted[id] = true
	}
	counts := make(map[allocation.StaffID]int)
	for _, a := range m.assignments {
		if a.Policy == policy && a.Active && a.PrisonCode == prison && wanted[a.StaffID] {
			counts[a.StaffID]++
		}
	}
	return counts, nil
}

func (m *Memory) LatestAutoAllocationAt(_ context.Context, policy allocation.PolicyCode, prison allocation.PrisonCode, staffIDs []allocation.StaffID) (map[allocation.StaffID]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[allocation.StaffID]bool, len(staffIDs))
	for _, id := range staffIDs {
		wanted[id] = true
	}
	latest := make(map[allocation.StaffID]time.Time)
	for _, a := range m.assignments {
		if a.Policy != policy || a.PrisonCode != prison || !wanted[a.StaffID] {
			continue
		}
		if a.AllocationReason != allocation.ReasonAuto {
			continue
		}
		if t, ok := latest[a.StaffID]; !ok || a.AllocatedAt.After(t) {
			latest[a.StaffID] = a.AllocatedAt
		}
	}
	return latest, nil
}

func (m *Memory) Save(_ context.Context, a *allocation.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(a)
}

func (m *Memory) SaveAll(_ context.Context, as []*allocation.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range as {
		if err := m.saveLocked(a); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) saveLocked(a *allocation.Assignment) error {
	if a.Active {
		// One active assignment per (person, policy).
		for _, existing := range m.assignments {
			if existing.ID != a.ID && existing.Active &&
				existing.PersonID == a.PersonID && existing.Policy == a.Policy {
				return allocation.ErrActiveAssignmentExists
			}
		}
	}
	m.assignments[a.ID] = *a
	return nil
}

func (m *Memory) DeleteProvisional(_ context.Context, policy allocation.PolicyCode, people []allocation.PersonID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[allocation.PersonID]bool, len(people))
	for _, id := range people {
		wanted[id] = true
	}
	for id, a := range m.assignments {
		if a.Policy == policy && a.Provisional && wanted[a.PersonID] {
			delete(m.assignments, id)
		}
	}
	return nil
}

// WithTx snapshots the assignment map and restores it if fn fails, giving
// the same all-or-nothing behaviour as a database transaction.
func (m *Memory) WithTx(_ context.Context, fn func(allocation.AssignmentStore) error) error {
	m.mu.RLock()
	backup := make(map[string]allocation.Assignment, len(m.assignments))
	for k, v := range m.assignments {
		backup[k] = v
	}
	m.mu.RUnlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.assignments = backup
		m.mu.Unlock()
		return err
	}
	return nil
}

// =============================================================================
// STAFF / PRISON CONFIG AND REFERENCE DATA
// =============================================================================

func (m *Memory) FindConfigs(_ context.Context, policy allocation.PolicyCode, staffIDs []allocation.StaffID) (map[allocation.StaffID]allocation.StaffConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[allocation.StaffID]allocation.StaffConfig)
	for _, id := range staffIDs {
		if cfg, ok := m.staffConfigs[staffKey{Policy: policy, StaffID: id}]; ok {
			out[id] = cfg
		}
	}
	return out, nil
}

func (m *Memory) SaveStaffConfig(_ context.Context, cfg allocation.StaffConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staffConfigs[staffKey{Policy: cfg.Policy, StaffID: cfg.StaffID}] = cfg
	return nil
}

func (m *Memory) FindByCode(_ context.Context, prison allocation.PrisonCode, policy allocation.PolicyCode) (*allocation.PrisonConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if cfg, ok := m.prisonConfigs[prisonKey{Prison: prison, Policy: policy}]; ok {
		out := cfg
		return &out, nil
	}
	return nil, nil
}

func (m *Memory) SavePrisonConfig(_ context.Context, cfg allocation.PrisonConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prisonConfigs[prisonKey{Prison: cfg.PrisonCode, Policy: cfg.Policy}] = cfg
	return nil
}

func (m *Memory) Resolve(_ context.Context, domain allocation.ReferenceDomain, code string) (*allocation.ReferenceData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rd, ok := m.referenceData[refKey{Domain: domain, Code: code}]; ok {
		out := rd
		return &out, nil
	}
	return nil, nil
}

func (m *Memory) SeedReferenceData(records []allocation.ReferenceData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rd := range records {
		m.referenceData[refKey{Domain: rd.Domain, Code: rd.Code}] = rd
	}
}

func sortAssignments(as []allocation.Assignment) {
	sort.Slice(as, func(i, j int) bool {
		if !as[i].AllocatedAt.Equal(as[j].AllocatedAt) {
			return as[i].AllocatedAt.Before(as[j].AllocatedAt)
		}
		return as[i].ID < as[j].ID
	})
}

// =============================================================================
// STATIC COLLABORATORS - Fixed lookup data for tests and local dev
// =============================================================================

// StaticLocation implements allocation.PersonLocation over a fixed map.
type StaticLocation struct {
	Residents map[allocation.PersonID]allocation.PrisonCode
}

func (s StaticLocation) FindResidents(_ context.Context, people []allocation.PersonID) (map[allocation.PersonID]allocation.PrisonCode, error) {
	out := make(map[allocation.PersonID]allocation.PrisonCode)
	for _, id := range people {
		if prison, ok := s.Residents[id]; ok {
			out[id] = prison
		}
	}
	return out, nil
}

// StaticRoster implements allocation.StaffRoster over a fixed list per prison.
type StaticRoster struct {
	Staff map[allocation.PrisonCode][]allocation.StaffSummary
}

func (s StaticRoster) FindEligibleStaff(_ context.Context, prison allocation.PrisonCode, _ string) ([]allocation.StaffSummary, error) {
	return s.Staff[prison], nil
}

// StaticSearch implements allocation.PersonSearch over a fixed list per prison.
type StaticSearch struct {
	People map[allocation.PrisonCode][]allocation.Person
}

func (s StaticSearch) FindAllocatablePeople(_ context.Context, prison allocation.PrisonCode) ([]allocation.Person, error) {
	return s.People[prison], nil
}
