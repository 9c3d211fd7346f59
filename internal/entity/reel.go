package entity

import (
	"errors"
	"time"
)

// Reel is a short-form video document from the reels collection.
type Reel struct {
	ID           string    `bson:"_id" json:"id"`
	AuthorID     string    `bson:"authorId" json:"author_id"`
	VideoURL     string    `bson:"videoUrl" json:"video_url"`
	Caption      string    `bson:"caption,omitempty" json:"caption,omitempty"`
	Likes        []string  `bson:"likes,omitempty" json:"likes,omitempty"`
	CommentCount int       `bson:"commentCount" json:"comment_count"`
	CreatedAt    time.Time `bson:"createdAt" json:"created_at"`
}

func (r *Reel) Kind() Kind       { return KindReel }
func (r *Reel) EntityID() string { return r.ID }

func (r *Reel) Clone() Entity {
	cp := *r
	cp.Likes = cloneStrings(r.Likes)
	return &cp
}

func (r *Reel) Validate() error {
	if r.ID == "" {
		return errors.New("reel: missing id")
	}
	if r.AuthorID == "" {
		return errors.New("reel: missing author id")
	}
	if r.VideoURL == "" {
		return errors.New("reel: missing video url")
	}
	if r.CreatedAt.IsZero() {
		return errors.New("reel: missing created timestamp")
	}
	return nil
}

// LikedBy reports whether the given user is in the like set.
func (r *Reel) LikedBy(userID string) bool {
	return contains(r.Likes, userID)
}
