package aggregate

import (
	"github.com/altsrc/sourced"
)

// Reaction is an in-memory state mutation bound to a single event payload
// type. Reactions are registered explicitly when the aggregate is bound -
// there is no runtime method scanning.
type Reaction interface {
	eventType() string
	react(payload any)
}

// When builds a Reaction for payload type E. The provided function is
// invoked synchronously whenever an event carrying an E payload is applied
// or replayed.
//
//	var acc Account
//	acc.Bind(id,
//		aggregate.When(acc.onOpened),
//		aggregate.When(acc.onDeposited),
//	)
func When[E any](fn func(E)) Reaction {
	return reaction[E]{fn: fn}
}

type reaction[E any] struct {
	fn func(E)
}

func (r reaction[E]) eventType() string {
	var zero E

	return sourced.TypeName(zero)
}

func (r reaction[E]) react(payload any) {
	if evt, ok := payload.(E); ok {
		r.fn(evt)
	}
}
