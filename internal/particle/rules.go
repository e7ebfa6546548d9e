package particle

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule describes what happens when a particle of species A interacts with a
// particle of species B along an edge A -> B.
type Rule struct {
	A string `yaml:"a"`
	B string `yaml:"b"`

	// Symmetric also applies the rule to B -> A.
	Symmetric bool `yaml:"symmetric,omitempty"`

	// Consumed removes both parents after the interaction.
	Consumed bool `yaml:"consumed,omitempty"`

	// Emit lists the species of the particles produced.
	Emit []string `yaml:"emit,omitempty"`

	// Transfer moves this much energy from the first particle to the second,
	// never taking the first below zero. Applied before emission.
	Transfer int `yaml:"transfer,omitempty"`
}

// Rules is an ordered reaction table. The first matching rule wins.
type Rules struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules is a small annihilation table: an electron meeting a positron
// produces two photons, and photons scatter energy onto electrons.
func DefaultRules() Rules {
	return Rules{Rules: []Rule{
		{A: "electron", B: "positron", Symmetric: true, Consumed: true, Emit: []string{"photon", "photon"}},
		{A: "photon", B: "electron", Symmetric: true, Transfer: 1},
		{A: "neutron", B: "nucleus", Consumed: true, Emit: []string{"fragment", "fragment", "neutron"}},
	}}
}

// LoadRules reads a YAML reaction table.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading rules file: %w", err)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parsing rules file: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validate checks every rule names both species and has a non-negative
// transfer.
func (r Rules) Validate() error {
	for i, rule := range r.Rules {
		if rule.A == "" || rule.B == "" {
			return fmt.Errorf("rule %d: both species are required", i)
		}
		if rule.Transfer < 0 {
			return fmt.Errorf("rule %d: transfer must be non-negative, got %d", i, rule.Transfer)
		}
		for j, s := range rule.Emit {
			if s == "" {
				return fmt.Errorf("rule %d: emit[%d] is empty", i, j)
			}
		}
	}
	return nil
}

// Match returns the first rule for the ordered pair (a, b). swapped is true
// when the rule matched as (b, a) through Symmetric.
func (r Rules) Match(a, b string) (rule Rule, swapped, ok bool) {
	for _, rule := range r.Rules {
		if rule.A == a && rule.B == b {
			return rule, false, true
		}
		if rule.Symmetric && rule.A == b && rule.B == a {
			return rule, true, true
		}
	}
	return Rule{}, false, false
}

// Oracle resolves interactions between particles using a reaction table.
type Oracle struct {
	rules Rules
}

// NewOracle creates an oracle over rules.
func NewOracle(rules Rules) *Oracle {
	return &Oracle{rules: rules}
}

// Interact applies the first matching rule. Unmatched pairs do nothing.
//
// Energy is conserved: a consuming rule splits the pair's total energy
// evenly across the emitted particles, with the remainder going to the first.
func (o *Oracle) Interact(a, b *Particle) (bool, []Particle, error) {
	rule, swapped, ok := o.rules.Match(a.Species, b.Species)
	if !ok {
		return false, nil, nil
	}

	from, to := a, b
	if swapped {
		from, to = b, a
	}
	if rule.Transfer > 0 {
		moved := min(rule.Transfer, from.Energy)
		from.Energy -= moved
		to.Energy += moved
	}

	if len(rule.Emit) == 0 {
		return rule.Consumed, nil, nil
	}

	emitted := make([]Particle, len(rule.Emit))
	for i, species := range rule.Emit {
		emitted[i] = Particle{Species: species}
	}
	if rule.Consumed {
		total := a.Energy + b.Energy
		share, rest := total/len(emitted), total%len(emitted)
		for i := range emitted {
			emitted[i].Energy = share
		}
		emitted[0].Energy += rest
	}
	return rule.Consumed, emitted, nil
}
