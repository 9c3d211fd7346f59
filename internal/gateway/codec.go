package gateway

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"gamelysync/internal/entity"
)

// Encode flattens an entity into a raw document.
func Encode(e entity.Entity) (bson.M, error) {
	raw, err := bson.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", e.Kind(), e.EntityID(), err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", e.Kind(), e.EntityID(), err)
	}
	return doc, nil
}

// Decode turns a raw document into a validated entity. Malformed documents
// are rejected here so nothing downstream ever sees them.
func Decode(kind entity.Kind, doc bson.M) (entity.Entity, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}

	var e entity.Entity
	switch kind {
	case entity.KindProfile:
		e = &entity.Profile{}
	case entity.KindPost:
		e = &entity.Post{}
	case entity.KindStory:
		e = &entity.Story{}
	case entity.KindReel:
		e = &entity.Reel{}
	case entity.KindGame:
		e = &entity.Game{}
	case entity.KindNotification:
		e = &entity.Notification{}
	default:
		return nil, fmt.Errorf("decode: unknown entity kind %q", kind)
	}

	if err := bson.Unmarshal(raw, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return e, nil
}
