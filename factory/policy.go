/*
Package factory provides policy resolution and JSON prison-configuration
conversion.

PURPOSE:
  Two jobs:
  1. Resolve a policy code to its implementation. The policy set is closed
     (key worker, personal officer); resolution happens once per request and
     the engine dispatches through the allocation.Policy interface from
     there on.
  2. Convert JSON prison-configuration documents into
     allocation.PrisonConfig. Operations teams enable prisons by shipping
     JSON, not code; documents are validated against an embedded JSON
     Schema before conversion so malformed configuration fails loudly at
     seed time rather than quietly at allocation time.

JSON SCHEMA:
  {
    "prison_code": "LEI",
    "policy": "KEY_WORKER",
    "enabled": true,
    "capacity": 6,
    "allow_auto_allocation": true,
    "session_frequency_days": 7
  }

USAGE:
  policy, err := factory.PolicyFor("KEY_WORKER")

  cf := factory.NewConfigFactory()
  cfg, err := cf.ParsePrisonConfig(jsonDoc)

SEE ALSO:
  - keyworker/policy.go, personalofficer/policy.go: The closed policy set
  - allocation/prisonconfig.go: The target type
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/warp/keyworker-engine/allocation"
	"github.com/warp/keyworker-engine/keyworker"
	"github.com/warp/keyworker-engine/personalofficer"
)

// =============================================================================
// POLICY REGISTRY - Closed set
// =============================================================================

// Policies returns every policy the engine supports.
func Policies() []allocation.Policy {
	return []allocation.Policy{keyworker.Policy{}, personalofficer.Policy{}}
}

// PolicyFor resolves a policy code. Unknown codes are a client error.
func PolicyFor(code allocation.PolicyCode) (allocation.Policy, error) {
	for _, p := range Policies() {
		if p.Code() == code {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown policy code %q", code)
}

// SeedReferenceData returns the combined reason records for all policies,
// deduplicated by (domain, code).
func SeedReferenceData() []allocation.ReferenceData {
	type key struct {
		d allocation.ReferenceDomain
		c string
	}
	seen := make(map[key]bool)
	var out []allocation.ReferenceData
	for _, records := range [][]allocation.ReferenceData{keyworker.ReferenceData(), personalofficer.ReferenceData()} {
		for _, rd := range records {
			k := key{rd.Domain, rd.Code}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, rd)
		}
	}
	return out
}

// =============================================================================
// PRISON CONFIG JSON
// =============================================================================

// PrisonConfigJSON is the JSON representation of a prison configuration.
type PrisonConfigJSON struct {
	PrisonCode           string `json:"prison_code"`
	Policy               string `json:"policy"`
	Enabled              bool   `json:"enabled"`
	Capacity             int    `json:"capacity"`
	AllowAutoAllocation  bool   `json:"allow_auto_allocation,omitempty"`
	SessionFrequencyDays int    `json:"session_frequency_days,omitempty"`
}

const prisonConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["prison_code", "policy", "enabled", "capacity"],
  "properties": {
    "prison_code": {"type": "string", "pattern": "^[A-Z]{2,6}$"},
    "policy": {"enum": ["KEY_WORKER", "PERSONAL_OFFICER"]},
    "enabled": {"type": "boolean"},
    "capacity": {"type": "integer", "minimum": 1},
    "allow_auto_allocation": {"type": "boolean"},
    "session_frequency_days": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": false
}`

// ConfigFactory validates and converts prison-configuration documents.
type ConfigFactory struct {
	schema *jsonschema.Schema
}

// NewConfigFactory compiles the embedded schema. A broken schema is caught
// by the factory tests, so MustCompileString is safe here.
func NewConfigFactory() *ConfigFactory {
	return &ConfigFactory{schema: jsonschema.MustCompileString("prison_config.json", prisonConfigSchema)}
}

// ParsePrisonConfig validates a JSON document and converts it. Defaults for
// fields the document omits come from the named policy.
func (f *ConfigFactory) ParsePrisonConfig(doc string) (*allocation.PrisonConfig, error) {
	var raw any
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, fmt.Errorf("prison config is not valid JSON: %w", err)
	}
	if err := f.schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("prison config failed validation: %w", err)
	}

	var pc PrisonConfigJSON
	if err := json.Unmarshal([]byte(doc), &pc); err != nil {
		return nil, err
	}
	policy, err := PolicyFor(allocation.PolicyCode(pc.Policy))
	if err != nil {
		return nil, err
	}

	cfg := policy.DefaultPrisonConfig(allocation.PrisonCode(strings.ToUpper(pc.PrisonCode)))
	cfg.Enabled = pc.Enabled
	cfg.Capacity = pc.Capacity
	cfg.AllowAutoAllocation = pc.AllowAutoAllocation
	if pc.SessionFrequencyDays > 0 {
		cfg.SessionFrequencyDays = pc.SessionFrequencyDays
	}
	return &cfg, nil
}
