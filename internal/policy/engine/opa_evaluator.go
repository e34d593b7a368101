package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/open-policy-agent/opa/v1/rego"

	"emeet/backend/internal/policy/repository"
)

const roomQuery = "data.emeet.room"

// defaultRegoPolicy admits only the two participants of an accepted request.
const defaultRegoPolicy = `package emeet.room

default allow := false

default role := ""

default reason := "not a participant of this meeting"

role := "requester" if {
	input.user.id == input.request.requester_id
} else := "host" if {
	input.user.id == input.request.host_id
}

allow if {
	input.user.id != ""
	input.request.status == "accepted"
	role != ""
}

reason := "meeting request is not accepted" if {
	input.request.status != "accepted"
}

reason := "" if {
	allow
}
`

// DefaultPolicy returns the built-in room policy source, e.g. to seed room_policies.
func DefaultPolicy() string { return defaultRegoPolicy }

// OPAEvaluator evaluates the room access policy with OPA Rego. The prepared query is rebuilt by
// Reload when operator policies change.
type OPAEvaluator struct {
	policyRepo repository.Repository

	mu       sync.RWMutex
	prepared rego.PreparedEvalQuery
	custom   bool
}

// NewOPAEvaluator compiles the built-in policy. policyRepo may be nil; Reload is then a no-op.
func NewOPAEvaluator(ctx context.Context, policyRepo repository.Repository) (*OPAEvaluator, error) {
	pq, err := prepare(ctx, []string{defaultRegoPolicy})
	if err != nil {
		return nil, fmt.Errorf("compile default policy: %w", err)
	}
	return &OPAEvaluator{policyRepo: policyRepo, prepared: pq}, nil
}

func prepare(ctx context.Context, modules []string) (rego.PreparedEvalQuery, error) {
	opts := []func(*rego.Rego){rego.Query(roomQuery)}
	for i, m := range modules {
		opts = append(opts, rego.Module(fmt.Sprintf("room_%d.rego", i), m))
	}
	return rego.New(opts...).PrepareForEval(ctx)
}

// Reload loads enabled operator policies and swaps them in. With none enabled the built-in
// policy is used. A policy that fails to compile leaves the current one in place.
func (e *OPAEvaluator) Reload(ctx context.Context) error {
	if e.policyRepo == nil {
		return nil
	}
	policies, err := e.policyRepo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load room policies: %w", err)
	}
	modules := make([]string, 0, len(policies))
	for _, p := range policies {
		if p.Rules != "" {
			modules = append(modules, p.Rules)
		}
	}
	custom := len(modules) > 0
	if !custom {
		modules = []string{defaultRegoPolicy}
	}
	pq, err := prepare(ctx, modules)
	if err != nil {
		log.Printf("policy: room policies rejected, keeping current: %v", err)
		return fmt.Errorf("compile room policies: %w", err)
	}
	e.mu.Lock()
	e.prepared = pq
	e.custom = custom
	e.mu.Unlock()
	return nil
}

// AuthorizeRoom evaluates the policy for in.
func (e *OPAEvaluator) AuthorizeRoom(ctx context.Context, in RoomAccess) (Decision, error) {
	e.mu.RLock()
	pq := e.prepared
	e.mu.RUnlock()

	rs, err := pq.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate room policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, errors.New("room policy returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("room policy returned %T", rs[0].Expressions[0].Value)
	}
	d := Decision{}
	d.Allowed, _ = doc["allow"].(bool)
	d.Role, _ = doc["role"].(string)
	d.Reason, _ = doc["reason"].(string)
	if d.Allowed && d.Role == "" {
		return Decision{}, errors.New("room policy allowed access without a role")
	}
	return d, nil
}

// HealthCheck evaluates the active policy against a known-good input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	d, err := e.AuthorizeRoom(ctx, RoomAccess{
		UserID:        "health-host",
		RequesterID:   "health-requester",
		HostID:        "health-host",
		RequestStatus: "accepted",
		SessionStatus: "open",
	})
	if err != nil {
		return err
	}
	e.mu.RLock()
	custom := e.custom
	e.mu.RUnlock()
	if !custom && (!d.Allowed || d.Role != RoleHost) {
		return fmt.Errorf("default room policy denied the host: %s", d.Reason)
	}
	return nil
}

func buildInput(in RoomAccess) map[string]interface{} {
	return map[string]interface{}{
		"user": map[string]interface{}{
			"id": in.UserID,
		},
		"request": map[string]interface{}{
			"requester_id": in.RequesterID,
			"host_id":      in.HostID,
			"status":       in.RequestStatus,
		},
		"session": map[string]interface{}{
			"status": in.SessionStatus,
		},
	}
}
