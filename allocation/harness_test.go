package allocation_test

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/keyworker-engine/allocation"
	memstore "github.com/warp/keyworker-engine/allocation/store"
)

// =============================================================================
// TEST POLICY - For testing without domain dependencies
// =============================================================================

// testPolicy is a concrete Policy for tests: key-worker shaped, but enabled
// and auto-allocatable by default so fixtures stay small.
type testPolicy struct{}

func (testPolicy) Code() allocation.PolicyCode { return allocation.PolicyKeyWorker }
func (testPolicy) Name() string                { return "Test policy" }
func (testPolicy) StaffRole() string           { return "KW" }
func (testPolicy) SessionCaseNoteType() string { return "KA" }

func (testPolicy) DefaultPrisonConfig(prison allocation.PrisonCode) allocation.PrisonConfig {
	return allocation.PrisonConfig{
		PrisonCode:           prison,
		Policy:               allocation.PolicyKeyWorker,
		Enabled:              true,
		Capacity:             6,
		AllowAutoAllocation:  true,
		SessionFrequencyDays: 7,
	}
}

var testActor = allocation.ActorContext{Username: "tester", Policy: testPolicy{}}

// =============================================================================
// ENGINE FIXTURE
// =============================================================================

// engine bundles a memory store with fully wired components and mutable
// static collaborator data.
type engine struct {
	store     *memstore.Memory
	roster    memstore.StaticRoster
	search    memstore.StaticSearch
	residents memstore.StaticLocation

	snapshots     *allocation.SnapshotBuilder
	recommender   *allocation.Recommender
	manager       *allocation.Manager
	deallocations *allocation.DeallocationService

	now     time.Time
	seedSeq int
}

func newEngine() *engine {
	e := &engine{
		store:     memstore.NewMemory(),
		roster:    memstore.StaticRoster{Staff: map[allocation.PrisonCode][]allocation.StaffSummary{}},
		search:    memstore.StaticSearch{People: map[allocation.PrisonCode][]allocation.Person{}},
		residents: memstore.StaticLocation{Residents: map[allocation.PersonID]allocation.PrisonCode{}},
		now:       time.Date(2027, time.March, 15, 10, 0, 0, 0, time.UTC),
	}
	e.store.SeedReferenceData([]allocation.ReferenceData{
		{Domain: allocation.DomainAllocationReason, Code: allocation.ReasonAuto, Description: "Automatic"},
		{Domain: allocation.DomainAllocationReason, Code: allocation.ReasonManual, Description: "Manual"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonOverride, Description: "Override"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonReleased, Description: "Released"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonTransfer, Description: "Transfer"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonStaffStatusChange, Description: "Status change"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonMerged, Description: "Merged"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonManualDealloc, Description: "Manual"},
	})

	clock := func() time.Time { return e.now }
	resolver := &allocation.Resolver{Store: e.store}
	e.snapshots = &allocation.SnapshotBuilder{
		Roster:        e.roster,
		StaffConfigs:  e.store,
		Assignments:   e.store,
		PrisonConfigs: e.store,
	}
	e.recommender = &allocation.Recommender{
		People:      e.search,
		Assignments: e.store,
		Snapshots:   e.snapshots,
	}
	e.manager = &allocation.Manager{
		Assignments:   e.store,
		StaffConfigs:  e.store,
		PrisonConfigs: e.store,
		ReferenceData: resolver,
		Roster:        e.roster,
		Location:      e.residents,
		Clock:         clock,
	}
	e.deallocations = &allocation.DeallocationService{
		Assignments:   e.store,
		ReferenceData: resolver,
		Clock:         clock,
	}
	return e
}

// addStaff rosters a staff member at a prison.
func (e *engine) addStaff(prison allocation.PrisonCode, id allocation.StaffID, first, last string) {
	e.roster.Staff[prison] = append(e.roster.Staff[prison], allocation.StaffSummary{
		StaffID: id, FirstName: first, LastName: last,
	})
}

// addPerson makes a person searchable and resident at a prison.
func (e *engine) addPerson(prison allocation.PrisonCode, id allocation.PersonID, first, last string, highComplexity bool) {
	e.search.People[prison] = append(e.search.People[prison], allocation.Person{
		ID: id, FirstName: first, LastName: last, HighComplexityOfNeed: highComplexity,
	})
	e.residents.Residents[id] = prison
}

// seedAssignment writes an assignment row directly, bypassing the Manager.
func (e *engine) seedAssignment(a allocation.Assignment) {
	e.seedSeq++
	if a.ID == "" {
		a.ID = fmt.Sprintf("seed-%d", e.seedSeq)
	}
	if a.AllocatedBy == "" {
		a.AllocatedBy = "seed"
	}
	if err := e.store.Save(context.Background(), &a); err != nil {
		panic(err)
	}
}
