// Package reconcile keeps displayed counts consistent with the
// relationship sets they are derived from. Counts are recomputed from the
// authoritative set at render time; the module never stores a counter that
// could drift from its source array.
package reconcile

import (
	"fmt"

	"gamelysync/internal/entity"
)

// Countable fields.
const (
	FieldFollowers = "followers"
	FieldFollowing = "following"
	FieldLikes     = "likes"
)

// DeriveCount computes a displayed count from the authoritative set.
func DeriveCount(e entity.Entity, field string) (int, error) {
	switch v := e.(type) {
	case *entity.Profile:
		switch field {
		case FieldFollowers:
			return len(v.Followers), nil
		case FieldFollowing:
			return len(v.Following), nil
		}
	case *entity.Post:
		if field == FieldLikes {
			return len(v.Likes), nil
		}
	case *entity.Story:
		if field == FieldLikes {
			return len(v.Likes), nil
		}
	case *entity.Reel:
		if field == FieldLikes {
			return len(v.Likes), nil
		}
	}
	return 0, fmt.Errorf("reconcile: no countable field %q on %s", field, e.Kind())
}

func addID(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, list...)
	return append(out, id)
}

func removeID(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
