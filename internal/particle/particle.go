// Package particle provides the payload type used by the fission CLI and an
// oracle that resolves interactions from a reaction table.
package particle

import "fmt"

// Particle is a vertex payload: a species name and an integer energy.
type Particle struct {
	Species string `json:"species" yaml:"species"`
	Energy  int    `json:"energy" yaml:"energy"`
}

// Clone returns a copy of p.
func (p Particle) Clone() Particle { return p }

// Equal reports whether p and other carry the same species and energy.
func (p Particle) Equal(other Particle) bool { return p == other }

func (p Particle) String() string {
	return fmt.Sprintf("%s(%d)", p.Species, p.Energy)
}
