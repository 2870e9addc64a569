// Package registry holds the declarative workflow graphs. Each entity kind
// declares its states and guarded transitions as data; the executor never
// hard-codes any particular graph.
package registry

import (
	"fmt"

	"mealflow/internal/workflow/models"
)

// CorrectionShape names the two transitions a kind uses for its
// request-fix/resubmit cycle. Kinds without a correction cycle leave it empty.
type CorrectionShape struct {
	RequestTransition  string
	ResubmitTransition string
	CorrectionState    models.State
}

// Machine is the full declarative definition of one entity kind's workflow.
type Machine struct {
	Kind          models.EntityKind
	Initial       models.State
	States        []models.StateDefinition
	Transitions   []models.TransitionDefinition
	DeletableFrom []models.State
	Correction    CorrectionShape
}

// Transition returns the named transition definition.
func (m *Machine) Transition(name string) (models.TransitionDefinition, bool) {
	for _, t := range m.Transitions {
		if t.Name == name {
			return t, true
		}
	}
	return models.TransitionDefinition{}, false
}

// HasState reports whether the state is declared on this machine.
func (m *Machine) HasState(s models.State) bool {
	for _, sd := range m.States {
		if sd.Code == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state is declared terminal.
func (m *Machine) IsTerminal(s models.State) bool {
	for _, sd := range m.States {
		if sd.Code == s {
			return sd.Terminal
		}
	}
	return false
}

// DeletableAt reports whether soft destroy is permitted from the state.
func (m *Machine) DeletableAt(s models.State) bool {
	for _, d := range m.DeletableFrom {
		if d == s {
			return true
		}
	}
	return false
}

// Validate checks internal consistency of the graph: the initial state and
// every transition endpoint must be declared, transition names must be unique,
// and terminal states must have no outgoing edges.
func (m *Machine) Validate() error {
	if !m.HasState(m.Initial) {
		return fmt.Errorf("machine %s: initial state %q not declared", m.Kind, m.Initial)
	}
	seen := make(map[string]bool, len(m.Transitions))
	for _, t := range m.Transitions {
		if seen[t.Name] {
			return fmt.Errorf("machine %s: duplicate transition %q", m.Kind, t.Name)
		}
		seen[t.Name] = true
		if len(t.Sources) == 0 {
			return fmt.Errorf("machine %s: transition %q has no source states", m.Kind, t.Name)
		}
		if len(t.AllowedRoles) == 0 {
			return fmt.Errorf("machine %s: transition %q has no allowed roles", m.Kind, t.Name)
		}
		for _, src := range t.Sources {
			if !m.HasState(src) {
				return fmt.Errorf("machine %s: transition %q source %q not declared", m.Kind, t.Name, src)
			}
			if m.IsTerminal(src) {
				return fmt.Errorf("machine %s: transition %q leaves terminal state %q", m.Kind, t.Name, src)
			}
		}
		if !m.HasState(t.Target) {
			return fmt.Errorf("machine %s: transition %q target %q not declared", m.Kind, t.Name, t.Target)
		}
	}
	if m.Correction.RequestTransition != "" {
		if _, ok := m.Transition(m.Correction.RequestTransition); !ok {
			return fmt.Errorf("machine %s: correction request transition %q not declared", m.Kind, m.Correction.RequestTransition)
		}
		if _, ok := m.Transition(m.Correction.ResubmitTransition); !ok {
			return fmt.Errorf("machine %s: correction resubmit transition %q not declared", m.Kind, m.Correction.ResubmitTransition)
		}
		if !m.HasState(m.Correction.CorrectionState) {
			return fmt.Errorf("machine %s: correction state %q not declared", m.Kind, m.Correction.CorrectionState)
		}
	}
	for _, d := range m.DeletableFrom {
		if !m.HasState(d) {
			return fmt.Errorf("machine %s: deletable state %q not declared", m.Kind, d)
		}
	}
	return nil
}

// Registry maps entity kinds to their machines and owns the event-code table.
// Event codes are small integers recorded on audit entries, mapped 1:1 to
// transition names. The table is append-only: a code, once assigned, is never
// reused or renumbered, because historic audit entries reference it forever.
type Registry struct {
	machines map[models.EntityKind]*Machine
	codes    map[models.EntityKind]map[string]int
	byCode   map[int]string
}

// New returns an empty registry. Most callers want Default.
func New() *Registry {
	return &Registry{
		machines: make(map[models.EntityKind]*Machine),
		codes:    make(map[models.EntityKind]map[string]int),
		byCode:   make(map[int]string),
	}
}

// Register adds a machine and its transition→code table. The code table must
// cover every transition exactly, and codes must be globally unique.
func (r *Registry) Register(m *Machine, codes map[string]int) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if _, exists := r.machines[m.Kind]; exists {
		return fmt.Errorf("registry: kind %s already registered", m.Kind)
	}
	if len(codes) != len(m.Transitions) {
		return fmt.Errorf("registry: kind %s: code table has %d entries for %d transitions", m.Kind, len(codes), len(m.Transitions))
	}
	for _, t := range m.Transitions {
		code, ok := codes[t.Name]
		if !ok {
			return fmt.Errorf("registry: kind %s: transition %q has no event code", m.Kind, t.Name)
		}
		if owner, taken := r.byCode[code]; taken {
			return fmt.Errorf("registry: event code %d for %s already assigned to %s", code, t.Name, owner)
		}
		r.byCode[code] = string(m.Kind) + "." + t.Name
	}
	r.machines[m.Kind] = m
	r.codes[m.Kind] = codes
	return nil
}

// Machine returns the graph for a kind.
func (r *Registry) Machine(kind models.EntityKind) (*Machine, error) {
	m, ok := r.machines[kind]
	if !ok {
		return nil, fmt.Errorf("registry: no machine for kind %q", kind)
	}
	return m, nil
}

// EventCode returns the audit event code of a transition.
func (r *Registry) EventCode(kind models.EntityKind, transition string) (int, error) {
	codes, ok := r.codes[kind]
	if !ok {
		return 0, fmt.Errorf("registry: no machine for kind %q", kind)
	}
	code, ok := codes[transition]
	if !ok {
		return 0, fmt.Errorf("registry: no event code for %s.%s", kind, transition)
	}
	return code, nil
}

// TransitionName resolves an event code back to its qualified transition name
// for history rendering. Unknown historic codes resolve to an empty string,
// never an error: old entries outlive graph revisions.
func (r *Registry) TransitionName(code int) string {
	return r.byCode[code]
}
