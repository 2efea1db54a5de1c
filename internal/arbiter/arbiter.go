package arbiter

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/turtacn/wmswitch/internal/candidate"
	"github.com/turtacn/wmswitch/internal/monitor"
	"github.com/turtacn/wmswitch/pkg/logger"
)

// Permission gates runtime toggles between the candidates.
type Permission int

const (
	SwitchNone Permission = iota
	SwitchToFallbackOnly
	SwitchToPrimaryOnly
	SwitchBoth
)

func (p Permission) String() string {
	switch p {
	case SwitchNone:
		return "none"
	case SwitchToFallbackOnly:
		return "to-fallback-only"
	case SwitchToPrimaryOnly:
		return "to-primary-only"
	case SwitchBoth:
		return "both"
	default:
		return fmt.Sprintf("permission(%d)", int(p))
	}
}

// Allows reports whether a switch away from the candidate `from` is permitted.
// Directional permissions only admit their own direction.
func (p Permission) Allows(from candidate.Choice) bool {
	switch p {
	case SwitchBoth:
		return !from.IsNone()
	case SwitchToFallbackOnly:
		return from == candidate.Primary
	case SwitchToPrimaryOnly:
		return from == candidate.Fallback
	default:
		return false
	}
}

// State is threaded through the rule chain. Favored is the winner so far;
// rules may narrow or widen Permission.
type State struct {
	Favored    candidate.Choice
	Permission Permission
}

// Rule is one step of the arbitration chain.
type Rule interface {
	// Evaluate inspects the host and records a vote, given the candidate favored so far.
	Evaluate(ctx context.Context, st *State)
	// Vote is the candidate this rule recommends, or candidate.None to abstain.
	Vote() candidate.Choice
	// AdditionalEnv is merged into the winner's environment overlay.
	AdditionalEnv() map[string]string
}

// Result is the immutable outcome of one arbitration pass.
type Result struct {
	Winner     candidate.Choice
	Permission Permission
	Env        [2]map[string]string
}

// EnvFor returns a copy of the overlay computed for c.
func (r Result) EnvFor(c candidate.Choice) map[string]string {
	if c.IsNone() {
		return nil
	}
	out := maps.Clone(r.Env[c.Index()])
	if out == nil {
		out = map[string]string{}
	}
	return out
}

// Factory builds a fresh rule chain, in evaluation order.
type Factory func() []Rule

// Pipeline runs the rule chain. It holds no state between runs, so it may be
// re-run on demand and from any goroutine.
type Pipeline struct {
	rules Factory
	log   logger.Logger
}

func NewPipeline(rules Factory) *Pipeline {
	return &Pipeline{rules: rules, log: logger.Log.With("component", "arbiter")}
}

func (p *Pipeline) Run(ctx context.Context) Result {
	start := time.Now()
	st := &State{Favored: candidate.Primary, Permission: SwitchBoth}
	env := [2]map[string]string{{}, {}}

	winner := candidate.Primary
	for _, rule := range p.rules() {
		st.Favored = winner
		rule.Evaluate(ctx, st)

		vote := rule.Vote()
		if !vote.IsNone() {
			winner = vote
		}
		if !winner.IsNone() {
			maps.Copy(env[winner.Index()], rule.AdditionalEnv())
		}
		p.log.Debug("Rule evaluated", "rule", ruleName(rule), "vote", vote.String(), "permission", st.Permission.String())
	}

	if winner.IsNone() {
		p.log.Warn("Every rule abstained, defaulting to primary")
		winner = candidate.Primary
	}

	res := Result{Winner: winner, Permission: st.Permission, Env: env}
	monitor.ArbitrationDuration.Observe(time.Since(start).Seconds())
	p.log.Info("Arbitration done", "winner", winner.String(), "permission", st.Permission.String())
	return res
}

func ruleName(r Rule) string {
	if s, ok := r.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", r)
}

// Personal.AI order the ending
