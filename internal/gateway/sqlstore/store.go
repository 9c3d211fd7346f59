// Package sqlstore backs the gateway with MySQL through GORM, storing each
// entity as a JSON document row. It suits server-side embedding where the
// relational database is already present; live queries are not available.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gamelysync/internal/entity"
	"gamelysync/internal/gateway"
)

type document struct {
	Kind      string    `gorm:"column:kind;primaryKey;size:32"`
	DocID     string    `gorm:"column:doc_id;primaryKey;size:64"`
	Version   uint64    `gorm:"column:version;not null"`
	Body      []byte    `gorm:"column:body;type:json;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (document) TableName() string { return "documents" }

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("sqlstore migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Open connects to MySQL with the given DSN and migrates the documents
// table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlstore open: %w", err)
	}
	return New(db)
}

func (s *Store) Fetch(ctx context.Context, kind entity.Kind, id string) (entity.Entity, error) {
	var row document
	err := s.db.WithContext(ctx).
		Where("kind = ? AND doc_id = ?", string(kind), id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gateway.Fail(gateway.ErrNotFound, "fetch", fmt.Errorf("%s/%s", kind, id))
		}
		return nil, classify("fetch", err)
	}
	doc, err := decodeBody(row.Body)
	if err != nil {
		return nil, err
	}
	return gateway.Decode(kind, doc)
}

// Query loads the kind's documents and evaluates predicates client-side.
// The documents table has no queryable columns per field; at the embedded
// dev-tool scale this store targets, that trade is fine.
func (s *Store) Query(ctx context.Context, kind entity.Kind, q gateway.Query) ([]entity.Entity, error) {
	var rows []document
	err := s.db.WithContext(ctx).
		Where("kind = ?", string(kind)).
		Find(&rows).Error
	if err != nil {
		return nil, classify("query", err)
	}

	var docs []bson.M
	for _, row := range rows {
		doc, err := decodeBody(row.Body)
		if err != nil {
			return nil, err
		}
		if gateway.MatchFilters(doc, q.Filters) {
			docs = append(docs, doc)
		}
	}
	gateway.SortDocuments(docs, q.OrderBy, q.Descending)
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}

	out := make([]entity.Entity, 0, len(docs))
	for _, doc := range docs {
		e, err := gateway.Decode(kind, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Write applies the patch read-modify-write under a row lock so concurrent
// writers serialize on the document.
func (s *Store) Write(ctx context.Context, kind entity.Kind, id string, p gateway.Patch) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("kind = ? AND doc_id = ?", string(kind), id).
			First(&row).Error
		fresh := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !fresh {
			return err
		}

		base := bson.M{"_id": id}
		if !fresh {
			if base, err = decodeBody(row.Body); err != nil {
				return err
			}
		}
		next, err := gateway.ApplyPatch(base, p)
		if err != nil {
			return err
		}
		next["_id"] = id
		if _, err := gateway.Decode(kind, next); err != nil {
			return err
		}
		body, err := bson.MarshalExtJSON(next, true, false)
		if err != nil {
			return err
		}

		row.Kind = string(kind)
		row.DocID = id
		row.Version++
		row.Body = body
		if fresh {
			return tx.Create(&row).Error
		}
		return tx.Where("kind = ? AND doc_id = ?", string(kind), id).
			Updates(map[string]interface{}{"version": row.Version, "body": row.Body}).Error
	})
	return classify("write", err)
}

// Subscribe is unsupported: MySQL has no live-query facility here. Callers
// needing live updates run against the Mongo or memory backend.
func (s *Store) Subscribe(ctx context.Context, kind entity.Kind, q gateway.Query) (<-chan gateway.Change, error) {
	return nil, gateway.Fail(gateway.ErrUnknown, "subscribe",
		errors.New("sqlstore: live queries unsupported"))
}

func decodeBody(body []byte) (bson.M, error) {
	var doc bson.M
	if err := bson.UnmarshalExtJSON(body, true, &doc); err != nil {
		return nil, fmt.Errorf("sqlstore: corrupt document body: %w", err)
	}
	return doc, nil
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return gateway.Fail(gateway.ErrUnavailable, op, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return gateway.Fail(gateway.ErrConflict, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return gateway.Fail(gateway.ErrUnavailable, op, err)
	}
	return gateway.Classify(op, err)
}
