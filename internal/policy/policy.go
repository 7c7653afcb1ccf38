// Package policy evaluates configurable rules over polling probe outcomes.
// Rules are govaluate expressions describing abort conditions; the polling
// coordinator consults them after every probe so operators can tune when a
// session gives up early (e.g. on a streak of gateway failures) without
// touching coordinator code.
package policy

import (
	"fmt"

	"github.com/Knetic/govaluate"

	"github.com/yourorg/qrpay/internal/payment"
)

// RuleConfig is one named abort condition.
type RuleConfig struct {
	Name       string
	Expression string
}

// ProbeOutcome is the parameter set a probe exposes to the rules.
type ProbeOutcome struct {
	Success             bool           // did the probe's gateway call complete cleanly
	Status              payment.Status // normalized status the probe observed
	ConsecutiveFailures int            // failed probes in a row, including this one
	TicksRemaining      int            // deadline ticks left in the session
}

// Decision is the outcome of evaluating all rules against one probe.
type Decision struct {
	Abort  bool   // stop the session without waiting for the deadline
	Reason string // name of the rule that fired
}

type compiledRule struct {
	name string
	expr *govaluate.EvaluableExpression
}

// ProbePolicy holds the compiled rule set.
type ProbePolicy struct {
	rules []compiledRule
}

// DefaultRules returns the stock rule set: abort a session once probes have
// failed five times in a row with a hard failure. Pending outcomes (including
// "trade not found") never count as hard failures.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{
			Name:       "AbortOnGatewayFailureStreak",
			Expression: "!probe_success && status == 'FAILED' && consecutive_failures >= 5",
		},
	}
}

// NewProbePolicy compiles the rule expressions.
func NewProbePolicy(rules []RuleConfig) (*ProbePolicy, error) {
	p := &ProbePolicy{}
	for _, rc := range rules {
		expr, err := govaluate.NewEvaluableExpression(rc.Expression)
		if err != nil {
			return nil, fmt.Errorf("policy: rule %q: %w", rc.Name, err)
		}
		p.rules = append(p.rules, compiledRule{name: rc.Name, expr: expr})
	}
	return p, nil
}

// Evaluate runs every rule against the probe outcome. The first rule whose
// expression evaluates true aborts the session.
func (p *ProbePolicy) Evaluate(outcome ProbeOutcome) (Decision, error) {
	params := map[string]interface{}{
		"probe_success":        outcome.Success,
		"status":               string(outcome.Status),
		"consecutive_failures": float64(outcome.ConsecutiveFailures),
		"ticks_remaining":      float64(outcome.TicksRemaining),
	}
	for _, rule := range p.rules {
		v, err := rule.expr.Evaluate(params)
		if err != nil {
			return Decision{}, fmt.Errorf("policy: rule %q evaluation: %w", rule.name, err)
		}
		fired, ok := v.(bool)
		if !ok {
			return Decision{}, fmt.Errorf("policy: rule %q did not evaluate to a boolean", rule.name)
		}
		if fired {
			return Decision{Abort: true, Reason: rule.name}, nil
		}
	}
	return Decision{}, nil
}
