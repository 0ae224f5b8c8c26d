// Package resolver turns a conflict graph into Stop/Resume decisions.
//
// Agents are decided one at a time in priority order. An agent stops iff
// it conflicts with an agent that already resumed in the same pass;
// otherwise it resumes. The resumed set is therefore an independent set of
// the conflict graph (no conflicting pair both move) and the stopped set
// covers every edge.
//
// Progress: in every connected group of conflicts the first agent in the
// order always resumes. Decisions depend only on the graph and the fixed
// order, never on earlier ticks, so the hub cannot build a wait-for cycle
// and a static neighborhood always yields the same decision.
package resolver

import (
	"errors"
	"fmt"
	"sort"

	"collision-hub/internal/conflict"
	"collision-hub/internal/models"
)

// ErrContractViolation marks inputs that can only come from a wiring bug
// upstream, such as an edge naming an agent the tick does not know.
var ErrContractViolation = errors.New("resolver contract violation")

// Assignment maps each agent to its control decision.
type Assignment map[string]models.MotionState

// Clone returns an independent copy.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Stopped lists the agents assigned Stop, sorted.
func (a Assignment) Stopped() []string {
	var out []string
	for id, s := range a {
		if s == models.MotionStop {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve computes the assignment for one tick. previous is part of the
// pipeline contract but does not influence the decision; only the
// dispatcher consumes it.
func Resolve(g *conflict.Graph, order *Order, previous Assignment) (Assignment, error) {
	if err := checkInputs(g, order); err != nil {
		return nil, err
	}

	out := make(Assignment, g.Len())
	for _, id := range order.ids {
		if !g.HasNode(id) {
			continue
		}
		state := models.MotionResume
		for _, n := range g.Neighbors(id) {
			if out[n] == models.MotionResume {
				state = models.MotionStop
				break
			}
		}
		out[id] = state
	}
	return out, nil
}

func checkInputs(g *conflict.Graph, order *Order) error {
	if g == nil || order == nil {
		return fmt.Errorf("%w: nil graph or order", ErrContractViolation)
	}
	for _, id := range g.Endpoints() {
		if !g.HasNode(id) {
			return fmt.Errorf("%w: conflict edge references unknown agent %q", ErrContractViolation, id)
		}
	}
	for _, id := range g.Nodes() {
		if _, ok := order.rank[id]; !ok {
			return fmt.Errorf("%w: agent %q has no priority rank", ErrContractViolation, id)
		}
	}
	return nil
}

// Verify checks an assignment against its graph: every agent decided, no
// conflicting pair both resumed.
func Verify(g *conflict.Graph, a Assignment) error {
	for _, id := range g.Nodes() {
		if !a[id].Valid() {
			return fmt.Errorf("%w: agent %q has no decision", ErrContractViolation, id)
		}
	}
	if len(a) != g.Len() {
		return fmt.Errorf("%w: assignment covers %d agents, graph has %d", ErrContractViolation, len(a), g.Len())
	}
	for _, e := range g.Edges() {
		if a[e.A] == models.MotionResume && a[e.B] == models.MotionResume {
			return fmt.Errorf("%w: conflicting agents %q and %q both resumed", ErrContractViolation, e.A, e.B)
		}
	}
	return nil
}
