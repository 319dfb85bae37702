/*
Package keyworker provides the key-worker allocation policy.

PURPOSE:
  Key working pairs each person in custody with a named officer who holds
  regular one-to-one sessions. This package supplies the policy constants
  the allocation engine dispatches on: the staff role to roster against,
  the session case-note type, the default prison configuration, and the
  reference data seeded at deploy time.

SEE ALSO:
  - allocation/types.go: The Policy interface this implements
  - personalofficer/policy.go: The other member of the closed policy set
*/
package keyworker

import "github.com/warp/keyworker-engine/allocation"

// Policy implements allocation.Policy for the key-worker scheme.
type Policy struct{}

func (Policy) Code() allocation.PolicyCode { return allocation.PolicyKeyWorker }
func (Policy) Name() string                { return "Key worker" }
func (Policy) StaffRole() string           { return "KW" }
func (Policy) SessionCaseNoteType() string { return "KA" }

// DefaultPrisonConfig applies when a prison has no explicit configuration
// row: key working disabled until switched on, six people per key worker,
// a session expected weekly.
func (Policy) DefaultPrisonConfig(prison allocation.PrisonCode) allocation.PrisonConfig {
	return allocation.PrisonConfig{
		PrisonCode:           prison,
		Policy:               allocation.PolicyKeyWorker,
		Enabled:              false,
		Capacity:             6,
		AllowAutoAllocation:  false,
		SessionFrequencyDays: 7,
	}
}

// ReferenceData returns the reason records seeded for this policy.
func ReferenceData() []allocation.ReferenceData {
	return []allocation.ReferenceData{
		{Domain: allocation.DomainAllocationReason, Code: allocation.ReasonAuto, Description: "Automatically allocated"},
		{Domain: allocation.DomainAllocationReason, Code: allocation.ReasonManual, Description: "Manually allocated"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonOverride, Description: "Allocated to another key worker"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonReleased, Description: "Released from custody"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonTransfer, Description: "Transferred to another prison"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonStaffStatusChange, Description: "Key worker status changed"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonMerged, Description: "Person identifiers merged"},
		{Domain: allocation.DomainDeallocationReason, Code: allocation.ReasonManualDealloc, Description: "Manually deallocated"},
	}
}
