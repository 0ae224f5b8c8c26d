// internal/resolver/order.go
package resolver

import (
	"fmt"
	"sort"
)

// Order is a fixed total order over agents. Rank 0 is decided first and
// therefore wins every conflict it takes part in.
//
// Agents may join a running order, but the relative order of two agents
// never changes once both are known.
type Order struct {
	ids  []string
	rank map[string]int
}

// NewOrder takes ids already in priority order.
func NewOrder(ids []string) (*Order, error) {
	o := &Order{
		ids:  make([]string, len(ids)),
		rank: make(map[string]int, len(ids)),
	}
	copy(o.ids, ids)
	for i, id := range ids {
		if _, dup := o.rank[id]; dup {
			return nil, fmt.Errorf("%w: %q appears twice in priority order", ErrContractViolation, id)
		}
		o.rank[id] = i
	}
	return o, nil
}

// OrderByDeviceID orders agents lexically by id.
func OrderByDeviceID(ids []string) *Order {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	sorted = dedupSorted(sorted)

	o, _ := NewOrder(sorted)
	return o
}

// Rank returns the position of id, or false if id is not ordered.
func (o *Order) Rank(id string) (int, bool) {
	r, ok := o.rank[id]
	return r, ok
}

// IDs returns the agents in priority order.
func (o *Order) IDs() []string {
	out := make([]string, len(o.ids))
	copy(out, o.ids)
	return out
}

// Len is the number of ordered agents.
func (o *Order) Len() int {
	return len(o.ids)
}

func dedupSorted(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
