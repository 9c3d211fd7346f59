package entity

import "errors"

// Game is a catalog entry from the games collection, the source of the
// favorite-game titles shown on profiles.
type Game struct {
	ID       string `bson:"_id" json:"id"`
	Title    string `bson:"title" json:"title"`
	CoverURL string `bson:"coverUrl,omitempty" json:"cover_url,omitempty"`
	Genre    string `bson:"genre,omitempty" json:"genre,omitempty"`
}

func (g *Game) Kind() Kind       { return KindGame }
func (g *Game) EntityID() string { return g.ID }

func (g *Game) Clone() Entity {
	cp := *g
	return &cp
}

func (g *Game) Validate() error {
	if g.ID == "" {
		return errors.New("game: missing id")
	}
	if g.Title == "" {
		return errors.New("game: missing title")
	}
	return nil
}
