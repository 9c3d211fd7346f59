package entity

import (
	"reflect"
)

// Kind names the backend collection an entity lives in.
type Kind string

const (
	KindProfile      Kind = "users"
	KindPost         Kind = "posts"
	KindStory        Kind = "stories"
	KindReel         Kind = "reels"
	KindGame         Kind = "games"
	KindNotification Kind = "notifications"
)

// Entity is any cacheable domain object.
type Entity interface {
	Kind() Kind
	EntityID() string
	Clone() Entity
	Validate() error
}

// Equal reports deep equality between two entities. Rollback tests rely on
// this being exact, not merely id equality.
func Equal(a, b Entity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// contains reports set membership in an id slice.
func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
