// Package mongostore backs the gateway with MongoDB: one collection per
// entity kind, patch ops translated to native update operators, live
// subscriptions via change streams.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gamelysync/internal/entity"
	"gamelysync/internal/gateway"
)

type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Connect dials MongoDB, pings it, and returns the store plus a disconnect
// function.
func Connect(ctx context.Context, uri, database string) (*Store, func(context.Context) error, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return New(client.Database(database)), client.Disconnect, nil
}

// Database exposes the underlying handle, e.g. for a GridFS media bucket
// sharing the deployment.
func (s *Store) Database() *mongo.Database { return s.db }

func (s *Store) collection(kind entity.Kind) *mongo.Collection {
	return s.db.Collection(string(kind))
}

func (s *Store) Fetch(ctx context.Context, kind entity.Kind, id string) (entity.Entity, error) {
	var doc bson.M
	err := s.collection(kind).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gateway.Fail(gateway.ErrNotFound, "fetch", fmt.Errorf("%s/%s", kind, id))
		}
		return nil, classify("fetch", err)
	}
	return gateway.Decode(kind, doc)
}

func (s *Store) Query(ctx context.Context, kind entity.Kind, q gateway.Query) ([]entity.Entity, error) {
	filter, err := buildFilter(q.Filters)
	if err != nil {
		return nil, gateway.Fail(gateway.ErrUnknown, "query", err)
	}
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		// secondary _id sort keeps the tie-break contract
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.collection(kind).Find(ctx, filter, opts)
	if err != nil {
		return nil, classify("query", err)
	}
	defer cur.Close(ctx)

	var out []entity.Entity
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, classify("query", err)
		}
		e, err := gateway.Decode(kind, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := cur.Err(); err != nil {
		return nil, classify("query", err)
	}
	return out, nil
}

func (s *Store) Write(ctx context.Context, kind entity.Kind, id string, p gateway.Patch) error {
	updates, err := buildUpdates(p)
	if err != nil {
		return gateway.Fail(gateway.ErrUnknown, "write", err)
	}
	opts := options.Update().SetUpsert(true)
	for _, update := range updates {
		if _, err := s.collection(kind).UpdateOne(ctx, bson.M{"_id": id}, update, opts); err != nil {
			return classify("write", err)
		}
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, kind entity.Kind, q gateway.Query) (<-chan gateway.Change, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}},
		}}},
	}
	stream, err := s.collection(kind).Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, classify("subscribe", err)
	}

	ch := make(chan gateway.Change, 16)
	go func() {
		defer close(ch)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			var ev struct {
				OperationType string `bson:"operationType"`
				DocumentKey   struct {
					ID string `bson:"_id"`
				} `bson:"documentKey"`
				FullDocument bson.M `bson:"fullDocument"`
			}
			if err := stream.Decode(&ev); err != nil {
				continue
			}
			change := gateway.Change{Kind: kind, ID: ev.DocumentKey.ID}
			if ev.OperationType == "delete" {
				change.Deleted = true
			} else {
				if ev.FullDocument == nil || !gateway.MatchFilters(ev.FullDocument, q.Filters) {
					continue
				}
				e, err := gateway.Decode(kind, ev.FullDocument)
				if err != nil {
					continue
				}
				change.Entity = e
			}
			select {
			case ch <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func buildFilter(filters []gateway.Filter) (bson.M, error) {
	out := bson.M{}
	for _, f := range filters {
		switch f.Op {
		case gateway.FilterEq:
			out[f.Field] = f.Value
		case gateway.FilterLt:
			out[f.Field] = bson.M{"$lt": f.Value}
		case gateway.FilterLte:
			out[f.Field] = bson.M{"$lte": f.Value}
		case gateway.FilterGt:
			out[f.Field] = bson.M{"$gt": f.Value}
		case gateway.FilterGte:
			out[f.Field] = bson.M{"$gte": f.Value}
		case gateway.FilterIn:
			out[f.Field] = bson.M{"$in": f.Value}
		default:
			return nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	return out, nil
}

// buildUpdates translates a patch to native operators. A field can only
// appear once per operator in a single update document, so ops that would
// collide are split into sequential updates.
func buildUpdates(p gateway.Patch) ([]bson.M, error) {
	var updates []bson.M
	sets := bson.M{}
	unsets := bson.M{}
	adds := map[string][]interface{}{}
	pulls := map[string][]interface{}{}
	incs := bson.M{}

	flush := func() {
		update := bson.M{}
		if len(sets) > 0 {
			update["$set"] = sets
		}
		if len(unsets) > 0 {
			update["$unset"] = unsets
		}
		if len(adds) > 0 {
			each := bson.M{}
			for f, vals := range adds {
				each[f] = bson.M{"$each": vals}
			}
			update["$addToSet"] = each
		}
		if len(pulls) > 0 {
			pl := bson.M{}
			for f, vals := range pulls {
				pl[f] = bson.M{"$in": vals}
			}
			update["$pull"] = pl
		}
		if len(incs) > 0 {
			update["$inc"] = incs
		}
		if len(update) > 0 {
			updates = append(updates, update)
		}
		sets, unsets, incs = bson.M{}, bson.M{}, bson.M{}
		adds, pulls = map[string][]interface{}{}, map[string][]interface{}{}
	}

	touched := func(field string) bool {
		_, s := sets[field]
		_, u := unsets[field]
		_, a := adds[field]
		_, pl := pulls[field]
		_, i := incs[field]
		return s || u || a || pl || i
	}

	for _, op := range p.Ops {
		switch op.Op {
		case gateway.OpSet:
			if touched(op.Field) {
				flush()
			}
			if op.Value == nil {
				unsets[op.Field] = ""
			} else {
				sets[op.Field] = op.Value
			}
		case gateway.OpArrayUnion:
			if _, ok := sets[op.Field]; ok {
				flush()
			}
			if _, ok := pulls[op.Field]; ok {
				flush()
			}
			adds[op.Field] = append(adds[op.Field], op.Value)
		case gateway.OpArrayRemove:
			if _, ok := sets[op.Field]; ok {
				flush()
			}
			if _, ok := adds[op.Field]; ok {
				flush()
			}
			pulls[op.Field] = append(pulls[op.Field], op.Value)
		case gateway.OpIncrement:
			if touched(op.Field) {
				flush()
			}
			incs[op.Field] = op.Value
		default:
			return nil, fmt.Errorf("unsupported patch op %d", op.Op)
		}
	}
	flush()
	return updates, nil
}

// classify maps driver errors onto the gateway failure taxonomy.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return gateway.Fail(gateway.ErrUnavailable, op, err)
	case mongo.IsDuplicateKeyError(err):
		return gateway.Fail(gateway.ErrConflict, op, err)
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 13: // Unauthorized
			return gateway.Fail(gateway.ErrPermissionDenied, op, err)
		case 18: // AuthenticationFailed
			return gateway.Fail(gateway.ErrUnauthenticated, op, err)
		}
	}
	return gateway.Classify(op, err)
}
