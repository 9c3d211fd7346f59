package reconcile

import (
	"fmt"

	"gamelysync/internal/entity"
	"gamelysync/internal/mutate"
)

// Follow builds the compound mutation for selfID following otherID: selfID
// joins other.followers and otherID joins self.following as one optimistic
// unit, so the symmetry invariant between the two profiles holds at every
// observable point.
func Follow(selfID, otherID string) mutate.Compound {
	return followCompound("follow", selfID, otherID, true)
}

// Unfollow is the inverse compound of Follow.
func Unfollow(selfID, otherID string) mutate.Compound {
	return followCompound("unfollow", selfID, otherID, false)
}

func followCompound(name, selfID, otherID string, add bool) mutate.Compound {
	return mutate.Compound{
		Name: name,
		First: mutate.Mutation{
			Name: name + ":followers",
			Kind: entity.KindProfile,
			ID:   otherID,
			Apply: func(e entity.Entity) (entity.Entity, error) {
				p, ok := e.(*entity.Profile)
				if !ok {
					return nil, fmt.Errorf("%s: %s is not a profile", name, otherID)
				}
				if add {
					p.Followers = addID(p.Followers, selfID)
				} else {
					p.Followers = removeID(p.Followers, selfID)
				}
				return p, nil
			},
		},
		Second: mutate.Mutation{
			Name: name + ":following",
			Kind: entity.KindProfile,
			ID:   selfID,
			Apply: func(e entity.Entity) (entity.Entity, error) {
				p, ok := e.(*entity.Profile)
				if !ok {
					return nil, fmt.Errorf("%s: %s is not a profile", name, selfID)
				}
				if add {
					p.Following = addID(p.Following, otherID)
				} else {
					p.Following = removeID(p.Following, otherID)
				}
				return p, nil
			},
		},
	}
}
