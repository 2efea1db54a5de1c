package candidate

import (
	"maps"
	"sort"
)

// Choice is an optional reference to one of the two candidates.
type Choice int

const (
	None Choice = iota
	Primary
	Fallback
)

func (c Choice) String() string {
	switch c {
	case Primary:
		return "primary"
	case Fallback:
		return "fallback"
	default:
		return "none"
	}
}

// IsNone reports whether c refers to no candidate.
func (c Choice) IsNone() bool { return c != Primary && c != Fallback }

// Other flips primary and fallback. None stays None.
func (c Choice) Other() Choice {
	switch c {
	case Primary:
		return Fallback
	case Fallback:
		return Primary
	default:
		return None
	}
}

// Index maps a non-none choice to its registry slot.
func (c Choice) Index() int {
	if c == Fallback {
		return 1
	}
	return 0
}

// Candidate is one launchable window manager.
type Candidate struct {
	Name     string
	ExecName string
	Env      map[string]string
}

// EnvList renders the overlay as sorted KEY=VALUE pairs.
func (c *Candidate) EnvList() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+c.Env[k])
	}
	return out
}

// Registry is the fixed, ordered pair of candidates.
type Registry struct {
	slots [2]Candidate
}

func NewRegistry(primary, fallback Candidate) *Registry {
	r := &Registry{slots: [2]Candidate{primary, fallback}}
	r.ClearEnv()
	return r
}

// Get returns the candidate for c, or nil for None.
func (r *Registry) Get(c Choice) *Candidate {
	if c.IsNone() {
		return nil
	}
	return &r.slots[c.Index()]
}

// Lookup finds the candidate whose ExecName equals execName.
func (r *Registry) Lookup(execName string) Choice {
	if execName == "" {
		return None
	}
	for _, c := range []Choice{Primary, Fallback} {
		if r.Get(c).ExecName == execName {
			return c
		}
	}
	return None
}

// ClearEnv drops both overlays.
func (r *Registry) ClearEnv() {
	for i := range r.slots {
		r.slots[i].Env = map[string]string{}
	}
}

// SetEnv replaces the overlay of c with a copy of env.
func (r *Registry) SetEnv(c Choice, env map[string]string) {
	if cand := r.Get(c); cand != nil {
		cand.Env = maps.Clone(env)
		if cand.Env == nil {
			cand.Env = map[string]string{}
		}
	}
}

// Personal.AI order the ending
