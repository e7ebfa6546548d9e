// Package simulation drives a graph through repeated interaction steps until
// it stabilizes or empties.
//
// Each step snapshots the graph, runs one engine collect/apply pass, and then
// classifies the result:
//
//	Empty   the graph has no vertices left
//	Stable  the graph is structurally identical to the pre-step snapshot
//	        (vertex set, payloads, both edge sets) and this was not step 0
//	Running anything else
//
// Empty and Stable are terminal. Observers see every completed step, which
// is how the CSV log, run history, and console renderer are fed.
//
// Usage:
//
//	g := seed.Random(cfg)
//	d := simulation.NewDriver(g, particle.NewOracle(rules), simulation.Options{})
//	d.Observe(csvWriter)
//	res, err := d.Run(ctx)
package simulation
