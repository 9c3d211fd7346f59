package reconcile

import (
	"fmt"

	"gamelysync/internal/entity"
	"gamelysync/internal/mutate"
)

// ToggleLike flips userID's membership in a post's like set. The direction
// is decided against the entity state at apply time, so replays during a
// rollback re-evaluate it instead of blindly repeating an add or remove.
func ToggleLike(userID, postID string) mutate.Mutation {
	return mutate.Mutation{
		Name: "toggle-like",
		Kind: entity.KindPost,
		ID:   postID,
		Apply: func(e entity.Entity) (entity.Entity, error) {
			p, ok := e.(*entity.Post)
			if !ok {
				return nil, fmt.Errorf("toggle-like: %s is not a post", postID)
			}
			if p.LikedBy(userID) {
				p.Likes = removeID(p.Likes, userID)
			} else {
				p.Likes = addID(p.Likes, userID)
			}
			return p, nil
		},
	}
}

// ToggleStoryLike flips userID's membership in a story's like set.
func ToggleStoryLike(userID, storyID string) mutate.Mutation {
	return mutate.Mutation{
		Name: "toggle-story-like",
		Kind: entity.KindStory,
		ID:   storyID,
		Apply: func(e entity.Entity) (entity.Entity, error) {
			s, ok := e.(*entity.Story)
			if !ok {
				return nil, fmt.Errorf("toggle-story-like: %s is not a story", storyID)
			}
			if contains(s.Likes, userID) {
				s.Likes = removeID(s.Likes, userID)
			} else {
				s.Likes = addID(s.Likes, userID)
			}
			return s, nil
		},
	}
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
