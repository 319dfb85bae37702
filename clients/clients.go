/*
Package clients provides HTTP implementations of the allocation engine's
collaborator lookups: person search, person location, and the staff roster.

The engine itself only sees the interfaces in allocation/store.go; these
clients are the production implementation, talking to the upstream prisoner
and staff directory services. Tests and local development use the static
implementations in allocation/store instead.
*/
package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/warp/keyworker-engine/allocation"
)

// Config holds the connection settings shared by all clients.
type Config struct {
	BaseURL string
	// Token supplies the bearer token for each request. Called per call so
	// rotated credentials take effect without restart.
	Token   func(ctx context.Context) (string, error)
	Timeout time.Duration
}

func newClient(cfg Config) *resty.Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.Token != nil {
		c.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			token, err := cfg.Token(req.Context())
			if err != nil {
				return err
			}
			req.SetAuthToken(token)
			return nil
		})
	}
	return c
}

func checkStatus(resp *resty.Response) error {
	if resp.IsError() {
		return fmt.Errorf("upstream %s returned %s", resp.Request.URL, resp.Status())
	}
	return nil
}

// =============================================================================
// PRISONER CLIENT - PersonSearch and PersonLocation
// =============================================================================

// PrisonerClient implements allocation.PersonSearch and
// allocation.PersonLocation against the prisoner search service.
type PrisonerClient struct {
	rc *resty.Client
}

func NewPrisonerClient(cfg Config) *PrisonerClient {
	return &PrisonerClient{rc: newClient(cfg)}
}

type prisonerDTO struct {
	PrisonerNumber        string `json:"prisonerNumber"`
	FirstName             string `json:"firstName"`
	LastName              string `json:"lastName"`
	PrisonID              string `json:"prisonId"`
	ComplexityOfNeedLevel string `json:"complexityOfNeedLevel,omitempty"`
}

func (c *PrisonerClient) FindAllocatablePeople(ctx context.Context, prison allocation.PrisonCode) ([]allocation.Person, error) {
	var body struct {
		Content []prisonerDTO `json:"content"`
	}
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&body).
		SetPathParam("prisonCode", string(prison)).
		Get("/prison/{prisonCode}/prisoners")
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	people := make([]allocation.Person, 0, len(body.Content))
	for _, p := range body.Content {
		people = append(people, allocation.Person{
			ID:                   allocation.PersonID(p.PrisonerNumber),
			FirstName:            p.FirstName,
			LastName:             p.LastName,
			HighComplexityOfNeed: p.ComplexityOfNeedLevel == "high",
		})
	}
	return people, nil
}

func (c *PrisonerClient) FindResidents(ctx context.Context, people []allocation.PersonID) (map[allocation.PersonID]allocation.PrisonCode, error) {
	ids := make([]string, len(people))
	for i, id := range people {
		ids[i] = string(id)
	}
	var body []prisonerDTO
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(ids).
		SetResult(&body).
		Post("/prisoner-search/prisoner-numbers")
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	out := make(map[allocation.PersonID]allocation.PrisonCode, len(body))
	for _, p := range body {
		out[allocation.PersonID(p.PrisonerNumber)] = allocation.PrisonCode(p.PrisonID)
	}
	return out, nil
}

// =============================================================================
// STAFF CLIENT - StaffRoster
// =============================================================================

// StaffClient implements allocation.StaffRoster against the staff directory.
type StaffClient struct {
	rc *resty.Client
}

func NewStaffClient(cfg Config) *StaffClient {
	return &StaffClient{rc: newClient(cfg)}
}

type staffDTO struct {
	StaffID   int64  `json:"staffId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (c *StaffClient) FindEligibleStaff(ctx context.Context, prison allocation.PrisonCode, role string) ([]allocation.StaffSummary, error) {
	var body []staffDTO
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&body).
		SetPathParam("prisonCode", string(prison)).
		SetQueryParam("role", role).
		Get("/staff/{prisonCode}/members")
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	out := make([]allocation.StaffSummary, 0, len(body))
	for _, s := range body {
		out = append(out, allocation.StaffSummary{
			StaffID:   allocation.StaffID(s.StaffID),
			FirstName: s.FirstName,
			LastName:  s.LastName,
		})
	}
	return out, nil
}
