// Package mutate is the optimistic mutation engine. A mutation is applied
// to the cached entity synchronously so the UI renders the new state at
// once, then the matching remote write settles asynchronously on a
// per-entity queue. Terminal failures roll the cache back to the state the
// entity would have had if the mutation had never happened.
package mutate

import (
	"gamelysync/internal/entity"
)

// Mutation is one local state change on a single entity. Apply receives a
// private clone of the current cached entity and returns the next state; it
// must be pure so the engine can replay it when an earlier mutation on the
// same entity rolls back. The remote patch is derived by diffing the states
// Apply produced, never written by hand.
type Mutation struct {
	Name  string
	Kind  entity.Kind
	ID    string
	Apply func(entity.Entity) (entity.Entity, error)
}

// Compound is a pair of mutations on two distinct entities that succeed or
// roll back together from the client's point of view. The remote legs run
// sequentially; if the second fails the first is compensated, and if
// compensation itself fails the caller sees a PartialFailure.
type Compound struct {
	Name   string
	First  Mutation
	Second Mutation
}
