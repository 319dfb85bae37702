package factory

import (
	"testing"

	"github.com/warp/keyworker-engine/allocation"
)

func TestPolicyFor(t *testing.T) {
	tests := []struct {
		code      allocation.PolicyCode
		wantRole  string
		wantError bool
	}{
		{allocation.PolicyKeyWorker, "KW", false},
		{allocation.PolicyPersonalOfficer, "PO", false},
		{"NOT_A_POLICY", "", true},
		{"", "", true},
	}

	for _, tc := range tests {
		p, err := PolicyFor(tc.code)
		if tc.wantError {
			if err == nil {
				t.Errorf("PolicyFor(%q): expected error, got %v", tc.code, p.Code())
			}
			continue
		}
		if err != nil {
			t.Errorf("PolicyFor(%q): unexpected error %v", tc.code, err)
			continue
		}
		if p.Code() != tc.code {
			t.Errorf("PolicyFor(%q): got code %q", tc.code, p.Code())
		}
		if p.StaffRole() != tc.wantRole {
			t.Errorf("PolicyFor(%q): got role %q, want %q", tc.code, p.StaffRole(), tc.wantRole)
		}
	}
}

func TestPolicyDefaults(t *testing.T) {
	// The two policies differ in default capacity and session cadence.
	kw, _ := PolicyFor(allocation.PolicyKeyWorker)
	po, _ := PolicyFor(allocation.PolicyPersonalOfficer)

	kwCfg := kw.DefaultPrisonConfig("LEI")
	if kwCfg.Capacity != 6 || kwCfg.SessionFrequencyDays != 7 {
		t.Errorf("key worker defaults: got capacity %d, frequency %d",
			kwCfg.Capacity, kwCfg.SessionFrequencyDays)
	}

	poCfg := po.DefaultPrisonConfig("LEI")
	if poCfg.Capacity != 20 || poCfg.SessionFrequencyDays != 28 {
		t.Errorf("personal officer defaults: got capacity %d, frequency %d",
			poCfg.Capacity, poCfg.SessionFrequencyDays)
	}

	if kwCfg.Enabled || poCfg.Enabled {
		t.Error("prisons must be opt-in: defaults may not be enabled")
	}
}

func TestSeedReferenceData_Deduplicates(t *testing.T) {
	type key struct {
		d allocation.ReferenceDomain
		c string
	}
	seen := make(map[key]bool)
	for _, rd := range SeedReferenceData() {
		k := key{rd.Domain, rd.Code}
		if seen[k] {
			t.Errorf("duplicate reference data record %v/%s", rd.Domain, rd.Code)
		}
		seen[k] = true
	}

	// Both reason domains carry the codes the engine depends on.
	for _, want := range []key{
		{allocation.DomainAllocationReason, allocation.ReasonAuto},
		{allocation.DomainAllocationReason, allocation.ReasonManual},
		{allocation.DomainDeallocationReason, allocation.ReasonOverride},
		{allocation.DomainDeallocationReason, allocation.ReasonReleased},
		{allocation.DomainDeallocationReason, allocation.ReasonTransfer},
		{allocation.DomainDeallocationReason, allocation.ReasonStaffStatusChange},
		{allocation.DomainDeallocationReason, allocation.ReasonMerged},
	} {
		if !seen[want] {
			t.Errorf("missing reference data record %v/%s", want.d, want.c)
		}
	}
}

// =============================================================================
// PRISON CONFIG JSON
// =============================================================================

func TestParsePrisonConfig_Valid(t *testing.T) {
	cf := NewConfigFactory()

	cfg, err := cf.ParsePrisonConfig(`{
		"prison_code": "LEI",
		"policy": "KEY_WORKER",
		"enabled": true,
		"capacity": 9,
		"allow_auto_allocation": true
	}`)
	if err != nil {
		t.Fatalf("ParsePrisonConfig failed: %v", err)
	}

	if cfg.PrisonCode != "LEI" || cfg.Policy != allocation.PolicyKeyWorker {
		t.Errorf("unexpected identity: %+v", cfg)
	}
	if !cfg.Enabled || cfg.Capacity != 9 || !cfg.AllowAutoAllocation {
		t.Errorf("unexpected settings: %+v", cfg)
	}
	// Omitted frequency falls back to the policy default.
	if cfg.SessionFrequencyDays != 7 {
		t.Errorf("expected default session frequency 7, got %d", cfg.SessionFrequencyDays)
	}
}

func TestParsePrisonConfig_Invalid(t *testing.T) {
	cf := NewConfigFactory()

	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"prison_code": `},
		{"missing required", `{"prison_code": "LEI", "policy": "KEY_WORKER"}`},
		{"bad prison code", `{"prison_code": "lei!", "policy": "KEY_WORKER", "enabled": true, "capacity": 6}`},
		{"unknown policy", `{"prison_code": "LEI", "policy": "CHAPLAIN", "enabled": true, "capacity": 6}`},
		{"zero capacity", `{"prison_code": "LEI", "policy": "KEY_WORKER", "enabled": true, "capacity": 0}`},
		{"extra field", `{"prison_code": "LEI", "policy": "KEY_WORKER", "enabled": true, "capacity": 6, "colour": "red"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := cf.ParsePrisonConfig(tc.doc); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}
