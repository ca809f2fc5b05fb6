package stream

import (
	"fmt"
	"strings"
)

////////////////////////////////////////////////////////////////////////////////

// EventP represents a predicate function that allows us to assert properties of
// an event appended to a Stream
type EventP[A any] interface {

	// Call will execute the logic of this event predicate
	Call(A) bool

	// Returns an string representation of this event predicate (for debugging
	// purposes)
	String() string
}

// FuncP is a predicate built from a plain closure and a human-readable
// description of what the closure checks
type FuncP[A any] struct {
	Desc string
	Fn   func(A) bool
}

// Call executes the wrapped closure
func (p FuncP[A]) Call(ev A) bool {
	return p.Fn(ev)
}

func (p FuncP[A]) String() string {
	return p.Desc
}

// Func builds an EventP out of a closure
func Func[A any](desc string, fn func(A) bool) EventP[A] {
	return FuncP[A]{Desc: desc, Fn: fn}
}

// EqP is a predicate that matches events equal to the given value
type EqP[A comparable] struct {
	Value A
}

// Call compares the event against the expected value
func (p EqP[A]) Call(ev A) bool {
	return ev == p.Value
}

func (p EqP[A]) String() string {
	return fmt.Sprintf("== %v", p.Value)
}

// Eq is a predicate to assert an event is equal to the given value
func Eq[A comparable](v A) EventP[A] {
	return EqP[A]{Value: v}
}

// Any is a predicate that matches every event
func Any[A any]() EventP[A] {
	return FuncP[A]{Desc: "any", Fn: func(A) bool { return true }}
}

// AndP is a predicate that builds the conjunction of a group EventP predicates
// (e.g. join EventP predicates with &&)
type AndP[A any] struct {
	Preds []EventP[A]
}

// Call will try and verify that all it's grouped predicates return true, if any
// returns false, this predicate function will return false
func (p AndP[A]) Call(ev A) bool {
	for _, pred := range p.Preds {
		if !pred.Call(ev) {
			return false
		}
	}
	return true
}

func (p AndP[A]) String() string {
	acc := make([]string, 0, len(p.Preds))
	for _, pred := range p.Preds {
		acc = append(acc, pred.String())
	}
	return strings.Join(acc, " && ")
}

// OrP is a predicate that builds the disjunction of a group EventP predicates
// (e.g. join EventP predicates with ||). An empty OrP matches everything.
type OrP[A any] struct {
	Preds []EventP[A]
}

// Call returns true as soon as one of the grouped predicates returns true
func (p OrP[A]) Call(ev A) bool {
	if len(p.Preds) == 0 {
		return true
	}
	for _, pred := range p.Preds {
		if pred.Call(ev) {
			return true
		}
	}
	return false
}

func (p OrP[A]) String() string {
	acc := make([]string, 0, len(p.Preds))
	for _, pred := range p.Preds {
		acc = append(acc, pred.String())
	}
	return "(" + strings.Join(acc, " || ") + ")"
}

// NotP negates the result of the wrapped predicate
type NotP[A any] struct {
	Pred EventP[A]
}

// Call negates the wrapped predicate
func (p NotP[A]) Call(ev A) bool {
	return !p.Pred.Call(ev)
}

func (p NotP[A]) String() string {
	return fmt.Sprintf("!(%s)", p.Pred.String())
}

// And joins the given predicates with &&
func And[A any](preds ...EventP[A]) EventP[A] {
	return AndP[A]{Preds: preds}
}

// Or joins the given predicates with ||
func Or[A any](preds ...EventP[A]) EventP[A] {
	return OrP[A]{Preds: preds}
}

// Not negates the given predicate
func Not[A any](pred EventP[A]) EventP[A] {
	return NotP[A]{Pred: pred}
}

////////////////////////////////////////////////////////////////////////////////

// Criteria is a lightweight closure version of EventP, used when filtering
// events on their way into a Stream
type Criteria[A any] func(A) bool

// EAnd joins a slice of Criteria with an and statement
func EAnd[A any](crits ...Criteria[A]) Criteria[A] {
	return func(ev A) bool {
		for _, crit := range crits {
			if !crit(ev) {
				return false
			}
		}
		return true
	}
}

// EOr joins a slice of Criteria with an or statement
func EOr[A any](crits ...Criteria[A]) Criteria[A] {
	return func(ev A) bool {
		for _, crit := range crits {
			if crit(ev) {
				return true
			}
		}
		return false
	}
}

// ENot negates the result from a given Criteria
func ENot[A any](crit Criteria[A]) Criteria[A] {
	return func(ev A) bool {
		return !crit(ev)
	}
}

// FromP converts an EventP into a Criteria
func FromP[A any](pred EventP[A]) Criteria[A] {
	return pred.Call
}

////////////////////////////////////////////////////////////////////////////////

// EventNotifier is a function used by producers to report events. A Stream
// exposes one through its Notifier method.
type EventNotifier[A any] func(A)

// EventNotifiers is a collection of notifiers that receive the same events in
// the same order.
type EventNotifiers[A any] []EventNotifier[A]

// Notify forwards the given event to every notifier, in registration order
func (ens EventNotifiers[A]) Notify(ev A) {
	for _, en := range ens {
		en(ev)
	}
}

// SelectByCriteria forwards events that match positively the given criteria
// to the given EventNotifier
func SelectByCriteria[A any](crit Criteria[A], notifier EventNotifier[A]) EventNotifier[A] {
	return func(ev A) {
		if crit(ev) {
			notifier(ev)
		}
	}
}
