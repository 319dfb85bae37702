/*
Package personalofficer provides the personal-officer allocation policy.

The personal-officer scheme is the wider-caseload counterpart of key
working: each officer holds more people and sees them less frequently.
Same engine, different constants.
*/
package personalofficer

import "github.com/warp/keyworker-engine/allocation"

// Policy implements allocation.Policy for the personal-officer scheme.
type Policy struct{}

func (Policy) Code() allocation.PolicyCode { return allocation.PolicyPersonalOfficer }
func (Policy) Name() string                { return "Personal officer" }
func (Policy) StaffRole() string           { return "PO" }
func (Policy) SessionCaseNoteType() string { return "PE" }

// DefaultPrisonConfig applies when a prison has no explicit configuration
// row: disabled until switched on, twenty people per officer, a session
// expected every four weeks.
func (Policy) DefaultPrisonConfig(prison allocation.PrisonCode) allocation.PrisonConfig {
	return allocation.PrisonConfig{
		PrisonCode:           prison,
		Policy:               allocation.PolicyPersonalOfficer,
		Enabled:              false,
		Capacity:             20,
		AllowAutoAllocation:  false,
		SessionFrequencyDays: 28,
	}
}

// ReferenceData returns the reason records seeded for this policy.
func ReferenceData() []allocation.ReferenceData {
	return []allocation.ReferenceData{
		{Domain: allocation.DomainAllocationReason, Code: allocation.ReasonAuto, Description: "Automatically allocated"},
		{Domain: allocation.DomainAllocationReason, Code: allocation.ReasonManual, Description: "Manually allocated"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonOverride, Description: "Allocated to another personal officer"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonReleased, Description: "Released from custody"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonTransfer, Description: "Transferred to another prison"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonStaffStatusChange, Description: "Personal officer status changed"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonMerged, Description: "Person identifiers merged"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonManualDealloc, Description: "Manually deallocated"},
	}
}
