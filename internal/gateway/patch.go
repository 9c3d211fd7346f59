package gateway

import (
	"fmt"
	"reflect"
	"sort"

	"go.mongodb.org/mongo-driver/bson"

	"gamelysync/internal/entity"
)

// PatchOp is one field-level write operation. Set with a nil value clears
// the field. ArrayUnion and ArrayRemove are set-membership operations on
// array fields, mirroring the store's native operators.
type PatchOp int

const (
	OpSet PatchOp = iota
	OpArrayUnion
	OpArrayRemove
	OpIncrement
)

type FieldOp struct {
	Op    PatchOp
	Field string
	Value interface{}
}

// Patch is an ordered list of field operations applied atomically to one
// document. An empty patch is a no-op.
type Patch struct {
	Ops []FieldOp
}

func (p Patch) IsEmpty() bool { return len(p.Ops) == 0 }

func NewPatch(ops ...FieldOp) Patch { return Patch{Ops: ops} }

func Set(field string, value interface{}) FieldOp {
	return FieldOp{Op: OpSet, Field: field, Value: value}
}

func ArrayUnion(field string, value interface{}) FieldOp {
	return FieldOp{Op: OpArrayUnion, Field: field, Value: value}
}

func ArrayRemove(field string, value interface{}) FieldOp {
	return FieldOp{Op: OpArrayRemove, Field: field, Value: value}
}

func Increment(field string, delta int64) FieldOp {
	return FieldOp{Op: OpIncrement, Field: field, Value: delta}
}

// FullPatch expresses an entire entity as Set ops, for document creation.
func FullPatch(e entity.Entity) (Patch, error) {
	doc, err := Encode(e)
	if err != nil {
		return Patch{}, err
	}
	names := make([]string, 0, len(doc))
	for f := range doc {
		if f == "_id" {
			continue
		}
		names = append(names, f)
	}
	sort.Strings(names)
	var p Patch
	for _, f := range names {
		p.Ops = append(p.Ops, Set(f, doc[f]))
	}
	return p, nil
}

// Diff computes the patch that transforms before into after. Array fields
// that changed by pure membership become ArrayUnion/ArrayRemove ops so
// concurrent writers on the same set do not clobber each other; everything
// else becomes a Set. Diff(after, before) is the inverse patch.
func Diff(before, after entity.Entity) (Patch, error) {
	bdoc, err := Encode(before)
	if err != nil {
		return Patch{}, fmt.Errorf("diff: encode before: %w", err)
	}
	adoc, err := Encode(after)
	if err != nil {
		return Patch{}, fmt.Errorf("diff: encode after: %w", err)
	}

	fields := make(map[string]struct{})
	for f := range bdoc {
		fields[f] = struct{}{}
	}
	for f := range adoc {
		fields[f] = struct{}{}
	}
	names := make([]string, 0, len(fields))
	for f := range fields {
		if f == "_id" {
			continue
		}
		names = append(names, f)
	}
	sort.Strings(names)

	var p Patch
	for _, f := range names {
		bv, inBefore := bdoc[f]
		av, inAfter := adoc[f]
		switch {
		case !inAfter:
			p.Ops = append(p.Ops, Set(f, nil))
		case !inBefore:
			if ops, ok := arrayDiff(f, nil, av); ok {
				p.Ops = append(p.Ops, ops...)
			} else {
				p.Ops = append(p.Ops, Set(f, av))
			}
		case reflect.DeepEqual(bv, av):
			// unchanged
		default:
			if ops, ok := arrayDiff(f, bv, av); ok {
				p.Ops = append(p.Ops, ops...)
			} else {
				p.Ops = append(p.Ops, Set(f, av))
			}
		}
	}
	return p, nil
}

// arrayDiff tries to express an array change as membership ops. It only
// succeeds when removing the missing elements and appending the new ones,
// in order, reproduces the after value exactly.
func arrayDiff(field string, bv, av interface{}) ([]FieldOp, bool) {
	before, ok := asArray(bv)
	if !ok && bv != nil {
		return nil, false
	}
	after, ok := asArray(av)
	if !ok {
		return nil, false
	}

	var removed, added []interface{}
	for _, e := range before {
		if !arrayContains(after, e) {
			removed = append(removed, e)
		}
	}
	for _, e := range after {
		if !arrayContains(before, e) {
			added = append(added, e)
		}
	}
	if len(removed) == 0 && len(added) == 0 {
		return nil, false
	}

	candidate := make([]interface{}, 0, len(after))
	for _, e := range before {
		if !arrayContains(removed, e) {
			candidate = append(candidate, e)
		}
	}
	candidate = append(candidate, added...)
	if !reflect.DeepEqual(candidate, after) {
		return nil, false
	}

	var ops []FieldOp
	for _, e := range removed {
		ops = append(ops, ArrayRemove(field, e))
	}
	for _, e := range added {
		ops = append(ops, ArrayUnion(field, e))
	}
	return ops, true
}

func asArray(v interface{}) ([]interface{}, bool) {
	switch a := v.(type) {
	case nil:
		return nil, true
	case []interface{}:
		return a, true
	case bson.A:
		return []interface{}(a), true
	}
	return nil, false
}

func arrayContains(arr []interface{}, v interface{}) bool {
	for _, e := range arr {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

// ApplyPatch applies a patch to a raw document and returns the result; the
// input document is not modified. Backends without native field operators
// (the in-memory store, the SQL store) share this as their write semantics.
func ApplyPatch(doc bson.M, p Patch) (bson.M, error) {
	out := bson.M{}
	for k, v := range doc {
		out[k] = v
	}
	for _, op := range p.Ops {
		val, err := normalizeValue(op.Value)
		if err != nil {
			return nil, fmt.Errorf("apply patch: field %q: %w", op.Field, err)
		}
		switch op.Op {
		case OpSet:
			if val == nil {
				delete(out, op.Field)
			} else {
				out[op.Field] = val
			}
		case OpArrayUnion:
			arr, _ := asArray(out[op.Field])
			if !arrayContains(arr, val) {
				next := make([]interface{}, 0, len(arr)+1)
				next = append(next, arr...)
				next = append(next, val)
				out[op.Field] = next
			}
		case OpArrayRemove:
			arr, _ := asArray(out[op.Field])
			next := make([]interface{}, 0, len(arr))
			for _, e := range arr {
				if !reflect.DeepEqual(e, val) {
					next = append(next, e)
				}
			}
			if len(next) == 0 {
				delete(out, op.Field)
			} else {
				out[op.Field] = next
			}
		case OpIncrement:
			cur, _ := asInt64(out[op.Field])
			delta, ok := asInt64(val)
			if !ok {
				return nil, fmt.Errorf("apply patch: field %q: non-numeric increment", op.Field)
			}
			out[op.Field] = cur + delta
		default:
			return nil, fmt.Errorf("apply patch: field %q: unknown op %d", op.Field, op.Op)
		}
	}
	return out, nil
}

// normalizeValue round-trips a value through bson so that hand-built patch
// values and codec-produced documents compare under the same representation.
func normalizeValue(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m["v"], nil
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
