package risk

import (
	"ParaLedger/internal/apperr"
	fpmath "ParaLedger/internal/math"
	"time"

	"github.com/google/uuid"
)

// Registry owns the risks of a product, the open policies referencing each
// risk and the outstanding oracle requests.
type Registry struct {
	risks         map[uuid.UUID]*Risk
	order         []uuid.UUID
	policies      map[uuid.UUID]*policySet
	requests      map[uint64]uuid.UUID
	nextRequestID uint64
}

func NewRegistry() *Registry {
	return &Registry{
		risks:    make(map[uuid.UUID]*Risk),
		policies: make(map[uuid.UUID]*policySet),
		requests: make(map[uint64]uuid.UUID),
	}
}

// ============================================================================
// Risks
// ============================================================================

func (g *Registry) Create(projectID, uaiID, cropID string, p Params, now time.Time) (*Risk, error) {
	id := ID(projectID, uaiID, cropID)
	if _, exists := g.risks[id]; exists {
		return nil, apperr.New(apperr.RiskAlreadyExists, "risk %s/%s/%s", projectID, uaiID, cropID)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	r := &Risk{
		ID:        id,
		ProjectID: normalize(projectID),
		UaiID:     normalize(uaiID),
		CropID:    normalize(cropID),
		Trigger:   p.Trigger,
		Exit:      p.Exit,
		TSI:       p.TSI,
		APH:       p.APH,
		CreatedAt: now,
		UpdatedAt: now,
	}
	g.risks[id] = r
	g.order = append(g.order, id)
	g.policies[id] = newPolicySet()
	return copyRisk(r), nil
}

// Adjust replaces the parameters of a risk no open policy references.
func (g *Registry) Adjust(id uuid.UUID, p Params, now time.Time) error {
	r, err := g.risk(id)
	if err != nil {
		return err
	}
	if n := g.policies[id].len(); n > 0 {
		return apperr.New(apperr.RiskWithPoliciesNotAdjustable, "risk %s has %d policies", id, n)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	r.Trigger, r.Exit, r.TSI, r.APH = p.Trigger, p.Exit, p.TSI, p.APH
	r.UpdatedAt = now
	return nil
}

func (g *Registry) risk(id uuid.UUID) (*Risk, error) {
	r, ok := g.risks[id]
	if !ok {
		return nil, apperr.New(apperr.RiskDoesNotExist, "risk %s", id)
	}
	return r, nil
}

func (g *Registry) Get(id uuid.UUID) (*Risk, error) {
	r, err := g.risk(id)
	if err != nil {
		return nil, err
	}
	return copyRisk(r), nil
}

// List returns the risks in creation order.
func (g *Registry) List() []*Risk {
	out := make([]*Risk, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, copyRisk(g.risks[id]))
	}
	return out
}

// ============================================================================
// Policies
// ============================================================================

func (g *Registry) AddPolicy(riskID, policyID uuid.UUID) error {
	if _, err := g.risk(riskID); err != nil {
		return err
	}
	g.policies[riskID].add(policyID)
	return nil
}

// RemovePolicy drops a policy that is no longer open. Unknown ids are ignored.
func (g *Registry) RemovePolicy(riskID, policyID uuid.UUID) {
	if set, ok := g.policies[riskID]; ok {
		set.remove(policyID)
	}
}

func (g *Registry) HasPolicy(riskID, policyID uuid.UUID) bool {
	set, ok := g.policies[riskID]
	return ok && set.contains(policyID)
}

func (g *Registry) PolicyCount(riskID uuid.UUID) int {
	if set, ok := g.policies[riskID]; ok {
		return set.len()
	}
	return 0
}

// Batch returns up to n open policies of a responded risk, taken from the
// tail of its policy set. n == 0 means all of them.
func (g *Registry) Batch(riskID uuid.UUID, n int) ([]uuid.UUID, error) {
	r, err := g.risk(riskID)
	if err != nil {
		return nil, err
	}
	if !r.Responded() {
		return nil, apperr.New(apperr.OracleResponseMissing, "risk %s has no oracle response", riskID)
	}
	return g.policies[riskID].tail(n), nil
}

// ============================================================================
// Oracle correlation
// ============================================================================

// Trigger opens a new oracle request for the risk and returns its id. An
// outstanding request is superseded and its id goes stale.
func (g *Registry) Trigger(riskID uuid.UUID, now time.Time) (uint64, error) {
	r, err := g.risk(riskID)
	if err != nil {
		return 0, err
	}
	if r.Responded() {
		return 0, apperr.New(apperr.OracleAlreadyResponded, "risk %s responded at %s", riskID, r.ResponseAt.Format(time.RFC3339))
	}
	if r.RequestTriggered {
		delete(g.requests, r.RequestID)
	}

	reqID := g.nextRequestID
	g.nextRequestID++
	g.requests[reqID] = riskID
	r.RequestTriggered = true
	r.RequestID = reqID
	r.UpdatedAt = now
	return reqID, nil
}

// Cancel invalidates the outstanding request so a late response is rejected.
func (g *Registry) Cancel(riskID uuid.UUID, now time.Time) (uint64, error) {
	r, err := g.risk(riskID)
	if err != nil {
		return 0, err
	}
	if !r.RequestTriggered {
		return 0, apperr.New(apperr.OracleRequestNotFound, "risk %s has no outstanding request", riskID)
	}
	delete(g.requests, r.RequestID)
	r.RequestTriggered = false
	r.UpdatedAt = now
	return r.RequestID, nil
}

// Response is the oracle payload for one request.
type Response struct {
	ProjectID string `json:"projectId"`
	UaiID     string `json:"uaiId"`
	CropID    string `json:"cropId"`
	AAAY      int64  `json:"aaay"`
}

// Outcome reports how a response was handled. A rejected response is not an
// error for the caller: Reason says why it was dropped.
type Outcome struct {
	RequestID uint64        `json:"requestId"`
	RiskID    uuid.UUID     `json:"riskId,omitempty"`
	Accepted  bool          `json:"accepted"`
	Reason    apperr.Reason `json:"reason,omitempty"`
}

// Respond delivers an oracle response. Rejected responses leave all state
// untouched: unknown or cancelled ids are stale, and a payload that does not
// fit its risk keeps the request outstanding.
func (g *Registry) Respond(reqID uint64, resp Response, now time.Time) Outcome {
	out := Outcome{RequestID: reqID}
	riskID, ok := g.requests[reqID]
	if !ok {
		out.Reason = apperr.OracleRequestStale
		return out
	}
	out.RiskID = riskID
	r := g.risks[riskID]

	if normalize(resp.ProjectID) != r.ProjectID || normalize(resp.UaiID) != r.UaiID || normalize(resp.CropID) != r.CropID {
		out.Reason = apperr.OracleResponseInvalid
		return out
	}
	if resp.AAAY < 0 || resp.AAAY > maxYield {
		out.Reason = apperr.OracleResponseInvalid
		return out
	}

	delete(g.requests, reqID)
	r.RequestTriggered = false
	r.AAAY = resp.AAAY
	r.ResponseAt = now
	r.UpdatedAt = now
	r.PayoutPercentage = fpmath.ComputePayoutPercentage(r.TSI, r.Trigger, r.Exit, r.APH, r.AAAY)
	out.Accepted = true
	return out
}

// RiskForRequest resolves an outstanding request id.
func (g *Registry) RiskForRequest(reqID uint64) (uuid.UUID, bool) {
	id, ok := g.requests[reqID]
	return id, ok
}

// ============================================================================
// Snapshots
// ============================================================================

func (g *Registry) Clone() *Registry {
	c := NewRegistry()
	for id, r := range g.risks {
		c.risks[id] = copyRisk(r)
	}
	c.order = append([]uuid.UUID(nil), g.order...)
	for id, set := range g.policies {
		c.policies[id] = set.clone()
	}
	for req, id := range g.requests {
		c.requests[req] = id
	}
	c.nextRequestID = g.nextRequestID
	return c
}

type RiskState struct {
	Risk     *Risk       `json:"risk"`
	Policies []uuid.UUID `json:"policies"`
}

type State struct {
	Risks         []RiskState `json:"risks"`
	NextRequestID uint64      `json:"nextRequestId"`
}

func (g *Registry) Export() State {
	s := State{Risks: make([]RiskState, 0, len(g.order)), NextRequestID: g.nextRequestID}
	for _, id := range g.order {
		s.Risks = append(s.Risks, RiskState{
			Risk:     copyRisk(g.risks[id]),
			Policies: append([]uuid.UUID(nil), g.policies[id].ids...),
		})
	}
	return s
}

// Restore rebuilds the registry, including outstanding requests, from s.
func (g *Registry) Restore(s State) {
	fresh := NewRegistry()
	for _, rs := range s.Risks {
		r := copyRisk(rs.Risk)
		fresh.risks[r.ID] = r
		fresh.order = append(fresh.order, r.ID)
		set := newPolicySet()
		for _, p := range rs.Policies {
			set.add(p)
		}
		fresh.policies[r.ID] = set
		if r.RequestTriggered {
			fresh.requests[r.RequestID] = r.ID
		}
	}
	fresh.nextRequestID = s.NextRequestID
	*g = *fresh
}
