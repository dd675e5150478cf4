package router

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dinehub/realtime-gateway/internal/connection"
	"github.com/dinehub/realtime-gateway/internal/domain"
	"github.com/dinehub/realtime-gateway/pkg/log"
)

// SourceAny matches any source application in a routing rule.
const SourceAny domain.ApplicationType = "*"

// Rule maps (event type, source application) to target applications. At most
// one rule per key is authoritative; on lookup the highest priority among the
// exact and wildcard matches wins.
type Rule struct {
	EventType      string
	Source         domain.ApplicationType
	Targets        []domain.ApplicationType
	RequireAuth    bool
	TenantIsolated bool
	Priority       int
}

type ruleKey struct {
	eventType string
	source    domain.ApplicationType
}

// ConnectionSource resolves live connections for target fan-out.
type ConnectionSource interface {
	ByApplication(app domain.ApplicationType, tenantID string) []*connection.Connection
}

// ValidationResult carries human-readable structural errors. It never panics
// or throws; an empty Errors slice means the message is routable.
type ValidationResult struct {
	Valid  bool
	Errors []string
	Event  *domain.Event
}

// RoutingResult is the resolved outcome of a route call. Targets are
// connection ids so the broadcaster does not re-resolve applications.
type RoutingResult struct {
	Success bool
	Rule    *Rule
	Targets []string
	Err     error
}

// Router owns the routing rule table.
type Router struct {
	mu    sync.RWMutex
	rules map[ruleKey]Rule
	conns ConnectionSource
}

func New(conns ConnectionSource) *Router {
	return &Router{
		rules: make(map[ruleKey]Rule),
		conns: conns,
	}
}

// AddRule upserts the rule for its (event type, source) key. Last write wins:
// rule tables are reloaded wholesale on configuration refresh.
func (r *Router) AddRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[ruleKey{eventType: rule.EventType, source: rule.Source}] = rule
}

// RemoveRule drops the rule for the given key, if present.
func (r *Router) RemoveRule(eventType string, source domain.ApplicationType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, ruleKey{eventType: eventType, source: source})
}

// Rules returns a snapshot of the rule table.
func (r *Router) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	return out
}

// Validate structurally checks a raw message: required fields, well-formed
// tenant id, known event type. It reports errors instead of failing.
func (r *Router) Validate(raw []byte) ValidationResult {
	var event domain.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return ValidationResult{Errors: []string{fmt.Sprintf("malformed message: %v", err)}}
	}

	if err := event.Validate(); err != nil {
		return ValidationResult{Errors: flatten(err), Event: &event}
	}

	return ValidationResult{Valid: true, Event: &event}
}

// Route resolves the authoritative rule for the event and expands it to the
// concrete set of live target connection ids. Tenant scoping is applied
// unconditionally, regardless of the rule's TenantIsolated flag.
func (r *Router) Route(event *domain.Event, sourceAuthenticated bool) RoutingResult {
	rule, ok := r.lookup(event.Type, event.Source)
	if !ok {
		err := fmt.Errorf("%w: type %q from %s", domain.ErrNoRoutingRule, event.Type, event.Source)
		l := log.L()
		l.Error().
			Str(log.FieldEventType, event.Type).
			Str(log.FieldApplication, event.Source.String()).
			Msg("no routing rule configured")
		return RoutingResult{Err: err}
	}

	if rule.RequireAuth && !sourceAuthenticated {
		return RoutingResult{Rule: &rule, Err: fmt.Errorf("%w: rule for %q requires an authenticated source", domain.ErrAuthentication, event.Type)}
	}

	targets := rule.Targets
	if len(event.Targets) > 0 {
		targets = event.Targets
	}

	seen := make(map[string]struct{})
	var connIDs []string
	for _, app := range targets {
		for _, conn := range r.conns.ByApplication(app, event.TenantID) {
			// Defense in depth: the (app, tenant) index is already
			// tenant-keyed, but a target must never cross tenants.
			if conn.TenantID != event.TenantID {
				continue
			}
			if _, dup := seen[conn.ID]; dup {
				continue
			}
			seen[conn.ID] = struct{}{}
			connIDs = append(connIDs, conn.ID)
		}
	}

	return RoutingResult{Success: true, Rule: &rule, Targets: connIDs}
}

// lookup returns the winning rule for (eventType, source): the exact match
// or the wildcard-source match, highest priority first.
func (r *Router) lookup(eventType string, source domain.ApplicationType) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exact, hasExact := r.rules[ruleKey{eventType: eventType, source: source}]
	wild, hasWild := r.rules[ruleKey{eventType: eventType, source: SourceAny}]

	switch {
	case hasExact && hasWild:
		if wild.Priority > exact.Priority {
			return wild, true
		}
		return exact, true
	case hasExact:
		return exact, true
	case hasWild:
		return wild, true
	}
	return Rule{}, false
}

func flatten(err error) []string {
	if errs, ok := err.(validation.Errors); ok {
		fields := make([]string, 0, len(errs))
		for field := range errs {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		out := make([]string, 0, len(errs))
		for _, field := range fields {
			out = append(out, fmt.Sprintf("%s: %v", field, errs[field]))
		}
		return out
	}
	return []string{err.Error()}
}
