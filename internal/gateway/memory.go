package gateway

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"gamelysync/internal/entity"
)

// Memory is an in-process Gateway used by tests and the demo server. It
// applies patch semantics authoritatively and supports scripted failures so
// retry and rollback paths can be exercised deterministically.
type Memory struct {
	mu         sync.RWMutex
	data       map[entity.Kind]map[string]bson.M
	subs       map[int]*memSub
	nextSubID  int
	scripted   map[string][]ErrorKind
	queryCalls map[entity.Kind]int
	writeCalls map[string]int
}

type memSub struct {
	kind entity.Kind
	q    Query
	ch   chan Change
}

func NewMemory() *Memory {
	return &Memory{
		data:       make(map[entity.Kind]map[string]bson.M),
		subs:       make(map[int]*memSub),
		scripted:   make(map[string][]ErrorKind),
		queryCalls: make(map[entity.Kind]int),
		writeCalls: make(map[string]int),
	}
}

// Seed inserts an entity directly, bypassing patch application.
func (m *Memory) Seed(e entity.Entity) error {
	doc, err := Encode(e)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collection(e.Kind())[e.EntityID()] = doc
	return nil
}

// Pass is a scripted slot that lets one call through unharmed, so a later
// call on the same document can be the one that fails.
const Pass ErrorKind = -1

// FailNext scripts failure kinds for upcoming calls matching op ("fetch",
// "write", "query") on kind/id; each scripted kind is consumed by one call.
func (m *Memory) FailNext(op string, kind entity.Kind, id string, kinds ...ErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scriptKey(op, kind, id)
	m.scripted[k] = append(m.scripted[k], kinds...)
}

// QueryCount reports how many Query calls ran against a collection.
func (m *Memory) QueryCount(kind entity.Kind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryCalls[kind]
}

// WriteCount reports how many Write calls ran against a document,
// including ones that failed.
func (m *Memory) WriteCount(kind entity.Kind, id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writeCalls[scriptKey("write", kind, id)]
}

// Document returns the raw stored document, for test inspection.
func (m *Memory) Document(kind entity.Kind, id string) (bson.M, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.collection(kind)[id]
	return doc, ok
}

func (m *Memory) Fetch(ctx context.Context, kind entity.Kind, id string) (entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify("fetch", err)
	}
	m.mu.Lock()
	if err := m.popScripted("fetch", kind, id); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	doc, ok := m.collection(kind)[id]
	m.mu.Unlock()
	if !ok {
		return nil, Fail(ErrNotFound, "fetch", fmt.Errorf("%s/%s", kind, id))
	}
	return Decode(kind, doc)
}

func (m *Memory) Query(ctx context.Context, kind entity.Kind, q Query) ([]entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify("query", err)
	}
	m.mu.Lock()
	m.queryCalls[kind]++
	if err := m.popScripted("query", kind, ""); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	var docs []bson.M
	for _, doc := range m.collection(kind) {
		if MatchFilters(doc, q.Filters) {
			docs = append(docs, doc)
		}
	}
	m.mu.Unlock()

	SortDocuments(docs, q.OrderBy, q.Descending)
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}

	out := make([]entity.Entity, 0, len(docs))
	for _, doc := range docs {
		e, err := Decode(kind, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) Write(ctx context.Context, kind entity.Kind, id string, p Patch) error {
	if err := ctx.Err(); err != nil {
		return Classify("write", err)
	}
	m.mu.Lock()
	m.writeCalls[scriptKey("write", kind, id)]++
	if err := m.popScripted("write", kind, id); err != nil {
		m.mu.Unlock()
		return err
	}
	base, ok := m.collection(kind)[id]
	if !ok {
		base = bson.M{"_id": id}
	}
	next, err := ApplyPatch(base, p)
	if err != nil {
		m.mu.Unlock()
		return Fail(ErrUnknown, "write", err)
	}
	next["_id"] = id
	if _, err := Decode(kind, next); err != nil {
		m.mu.Unlock()
		return Fail(ErrUnknown, "write", err)
	}
	m.collection(kind)[id] = next
	subs := make([]*memSub, 0, len(m.subs))
	for _, s := range m.subs {
		if s.kind == kind && MatchFilters(next, s.q.Filters) {
			subs = append(subs, s)
		}
	}
	m.mu.Unlock()

	for _, s := range subs {
		e, err := Decode(kind, next)
		if err != nil {
			continue
		}
		select {
		case s.ch <- Change{Kind: kind, ID: id, Entity: e}:
		default:
			// slow subscriber drops events rather than blocking writes
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, kind entity.Kind, q Query) (<-chan Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify("subscribe", err)
	}
	sub := &memSub{kind: kind, q: q, ch: make(chan Change, 16)}
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = sub
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		close(sub.ch)
	}()
	return sub.ch, nil
}

func (m *Memory) collection(kind entity.Kind) map[string]bson.M {
	c, ok := m.data[kind]
	if !ok {
		c = make(map[string]bson.M)
		m.data[kind] = c
	}
	return c
}

func (m *Memory) popScripted(op string, kind entity.Kind, id string) error {
	k := scriptKey(op, kind, id)
	queue := m.scripted[k]
	if len(queue) == 0 {
		return nil
	}
	next := queue[0]
	m.scripted[k] = queue[1:]
	if next == Pass {
		return nil
	}
	return Fail(next, op, errors.New("scripted failure"))
}

func scriptKey(op string, kind entity.Kind, id string) string {
	return op + "/" + string(kind) + "/" + id
}

// MatchFilters evaluates query filters against a raw document. Backends
// without native predicates share it.
func MatchFilters(doc bson.M, filters []Filter) bool {
	for _, f := range filters {
		want, err := normalizeValue(f.Value)
		if err != nil {
			return false
		}
		got := doc[f.Field]
		switch f.Op {
		case FilterEq:
			if !valuesEqual(got, want) {
				return false
			}
		case FilterIn:
			arr, ok := asArray(want)
			if !ok {
				return false
			}
			found := false
			for _, v := range arr {
				if valuesEqual(got, v) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			cmp, ok := compareValues(got, want)
			if !ok {
				return false
			}
			switch f.Op {
			case FilterLt:
				if cmp >= 0 {
					return false
				}
			case FilterLte:
				if cmp > 0 {
					return false
				}
			case FilterGt:
				if cmp <= 0 {
					return false
				}
			case FilterGte:
				if cmp < 0 {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b interface{}) (int, bool) {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case primitive.DateTime:
		return float64(int64(n)), true
	}
	return 0, false
}

// SortDocuments orders by the given field with ties broken by document id
// ascending, matching the Query contract.
func SortDocuments(docs []bson.M, orderBy string, desc bool) {
	if orderBy == "" {
		orderBy = "_id"
	}
	sort.SliceStable(docs, func(i, j int) bool {
		cmp, ok := compareValues(docs[i][orderBy], docs[j][orderBy])
		if !ok {
			cmp = 0
		}
		if cmp != 0 {
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}
		ai, _ := docs[i]["_id"].(string)
		aj, _ := docs[j]["_id"].(string)
		return ai < aj
	})
}
