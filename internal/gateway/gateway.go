package gateway

import (
	"context"

	"gamelysync/internal/entity"
)

// FilterOp is a query comparison operator.
type FilterOp string

const (
	FilterEq  FilterOp = "=="
	FilterLt  FilterOp = "<"
	FilterLte FilterOp = "<="
	FilterGt  FilterOp = ">"
	FilterGte FilterOp = ">="
	FilterIn  FilterOp = "in"
)

// Filter is a single field predicate.
type Filter struct {
	Field string
	Op    FilterOp
	Value interface{}
}

// Where builds a filter.
func Where(field string, op FilterOp, value interface{}) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query describes a collection read. Results are ordered by OrderBy with
// ties broken by document id ascending, so pagination cursors are total.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Change is one event from a live subscription.
type Change struct {
	Kind    entity.Kind
	ID      string
	Entity  entity.Entity
	Deleted bool
}

// Gateway is the narrow translation boundary to the external document
// store. It performs no business logic; documents are validated on the way
// in so malformed data never reaches the cache.
type Gateway interface {
	Fetch(ctx context.Context, kind entity.Kind, id string) (entity.Entity, error)
	Query(ctx context.Context, kind entity.Kind, q Query) ([]entity.Entity, error)
	Write(ctx context.Context, kind entity.Kind, id string, p Patch) error
	Subscribe(ctx context.Context, kind entity.Kind, q Query) (<-chan Change, error)
}
