package entity

import (
	"errors"
	"time"
)

// Post is a feed item from the posts collection. Likes is the authoritative
// like set; its cardinality is the displayed like count.
type Post struct {
	ID           string    `bson:"_id" json:"id"`
	AuthorID     string    `bson:"authorId" json:"author_id"`
	Media        []string  `bson:"media,omitempty" json:"media,omitempty"`
	Caption      string    `bson:"caption,omitempty" json:"caption,omitempty"`
	GameTag      string    `bson:"gameTag,omitempty" json:"game_tag,omitempty"`
	Likes        []string  `bson:"likes,omitempty" json:"likes,omitempty"`
	CommentCount int       `bson:"commentCount" json:"comment_count"`
	CreatedAt    time.Time `bson:"createdAt" json:"created_at"`
}

func (p *Post) Kind() Kind       { return KindPost }
func (p *Post) EntityID() string { return p.ID }

func (p *Post) Clone() Entity {
	cp := *p
	cp.Media = cloneStrings(p.Media)
	cp.Likes = cloneStrings(p.Likes)
	return &cp
}

func (p *Post) Validate() error {
	if p.ID == "" {
		return errors.New("post: missing id")
	}
	if p.AuthorID == "" {
		return errors.New("post: missing author id")
	}
	if p.CreatedAt.IsZero() {
		return errors.New("post: missing created timestamp")
	}
	return nil
}

// LikedBy reports whether the given user is in the like set.
func (p *Post) LikedBy(userID string) bool {
	return contains(p.Likes, userID)
}
