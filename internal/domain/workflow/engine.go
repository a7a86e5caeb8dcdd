// Package workflow drives safety documents through their lifecycle.
//
// Engine is a pure evaluator over per-kind transition tables. Service loads a
// document, evaluates a transition against the caller's identity, applies it to
// a copy and saves the copy with the version it was loaded at.
package workflow

import (
	"time"

	"github.com/sst/sst/internal/domain/access"
	"github.com/sst/sst/internal/domain/risk"
	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/platform/auth"
)

// Options tune guard behaviour.
type Options struct {
	// MaxReopens is how many times a completed training session may be reopened.
	MaxReopens int
	// ExpiryWarning is how long before valid-until an exam becomes por_vencer.
	ExpiryWarning time.Duration
}

// DefaultOptions returns one reopen and a thirty day expiry warning.
func DefaultOptions() Options {
	return Options{MaxReopens: 1, ExpiryWarning: 30 * 24 * time.Hour}
}

// Decision is the outcome of a successful evaluation.
type Decision struct {
	Transition string       `json:"transicion"`
	From       safety.State `json:"desde"`
	To         safety.State `json:"hacia"`
	// NoOp is set when an idempotent transition was already at its target.
	NoOp bool `json:"sin_cambios"`
}

// Engine evaluates transitions. It is safe for concurrent use.
type Engine struct {
	tables map[safety.Kind][]Transition
	risk   *risk.Engine
	opts   Options
	now    func() time.Time
}

// NewEngine builds an engine over the default transition tables.
func NewEngine(scorer *risk.Engine, opts Options) *Engine {
	if scorer == nil {
		scorer = risk.DefaultEngine()
	}
	return &Engine{tables: defaultTables(), risk: scorer, opts: opts, now: time.Now}
}

// Options returns the engine's guard options.
func (e *Engine) Options() Options { return e.opts }

func (e *Engine) lookup(kind safety.Kind, name string) (Transition, bool) {
	for _, t := range e.tables[kind] {
		if t.Name == name {
			return t, true
		}
	}
	return Transition{}, false
}

// Evaluate decides whether caller may fire transition name on doc. It never
// modifies doc.
func (e *Engine) Evaluate(doc *safety.Document, name string, caller auth.Identity) (Decision, error) {
	return e.evaluateAt(doc, name, caller, e.now())
}

func (e *Engine) evaluateAt(doc *safety.Document, name string, caller auth.Identity, now time.Time) (Decision, error) {
	op := transitionOp(doc.Kind, name)
	t, ok := e.lookup(doc.Kind, name)
	if !ok {
		return Decision{}, safety.InvalidTransition(op, safety.GuardUnknownTransition,
			"%s has no transition %q", doc.Kind, name)
	}

	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertOrganization(op, roles, caller.OrganizationID, doc.OrganizationID); err != nil {
		return Decision{}, err
	}
	if err := access.AssertCapability(op, roles, t.Capability); err != nil {
		return Decision{}, err
	}

	d := Decision{Transition: name, From: doc.State, To: t.To}
	if t.Idempotent && doc.State == t.To {
		d.NoOp = true
		return d, nil
	}
	if !t.from(doc.State) {
		return Decision{}, safety.InvalidTransition(op, safety.GuardWrongSourceState,
			"%s cannot fire from state %q", name, doc.State)
	}

	env := guardEnv{doc: doc, risk: e.risk, now: now, options: e.opts}
	for _, g := range t.guards {
		if err := g(op, env); err != nil {
			return Decision{}, err
		}
	}
	return d, nil
}

// Apply returns a copy of doc moved to the decision's target state with the
// transition's side effects applied. A no-op decision returns doc unchanged.
func (e *Engine) Apply(doc *safety.Document, d Decision, now time.Time) *safety.Document {
	if d.NoOp {
		return doc
	}
	next := doc.Clone()
	next.State = d.To
	next.UpdatedAt = now
	if t, ok := e.lookup(doc.Kind, d.Transition); ok && t.effect != nil {
		t.effect(next)
	}
	return next
}

// Available lists the transitions the caller could fire on doc right now.
func (e *Engine) Available(doc *safety.Document, caller auth.Identity) []Decision {
	var out []Decision
	for _, t := range e.tables[doc.Kind] {
		d, err := e.Evaluate(doc, t.Name, caller)
		if err == nil && !d.NoOp {
			out = append(out, d)
		}
	}
	return out
}

// Transitions returns the names of every transition defined for kind.
func (e *Engine) Transitions(kind safety.Kind) []string {
	names := make([]string, 0, len(e.tables[kind]))
	for _, t := range e.tables[kind] {
		names = append(names, t.Name)
	}
	return names
}
