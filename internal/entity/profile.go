package entity

import (
	"errors"
	"strings"
	"time"
)

// Profile is a user document from the users collection. Followers and
// Following are the authoritative relationship sets; displayed counts are
// always derived from them, never stored.
type Profile struct {
	ID            string    `bson:"_id" json:"id"`
	DisplayName   string    `bson:"displayName" json:"display_name"`
	Handle        string    `bson:"handle" json:"handle"`
	AvatarURL     string    `bson:"avatarUrl,omitempty" json:"avatar_url,omitempty"`
	BannerURL     string    `bson:"bannerUrl,omitempty" json:"banner_url,omitempty"`
	Bio           string    `bson:"bio,omitempty" json:"bio,omitempty"`
	FavoriteGames []string  `bson:"favoriteGames,omitempty" json:"favorite_games,omitempty"`
	Followers     []string  `bson:"followers,omitempty" json:"followers,omitempty"`
	Following     []string  `bson:"following,omitempty" json:"following,omitempty"`
	PostCount     int       `bson:"postCount" json:"post_count"`
	CreatedAt     time.Time `bson:"createdAt" json:"created_at"`
}

func (p *Profile) Kind() Kind       { return KindProfile }
func (p *Profile) EntityID() string { return p.ID }

func (p *Profile) Clone() Entity {
	cp := *p
	cp.FavoriteGames = cloneStrings(p.FavoriteGames)
	cp.Followers = cloneStrings(p.Followers)
	cp.Following = cloneStrings(p.Following)
	return &cp
}

func (p *Profile) Validate() error {
	if p.ID == "" {
		return errors.New("profile: missing id")
	}
	if strings.TrimSpace(p.Handle) == "" {
		return errors.New("profile: missing handle")
	}
	return nil
}

// IsFollowing reports whether this profile follows the given user.
func (p *Profile) IsFollowing(userID string) bool {
	return contains(p.Following, userID)
}

// IsFollowedBy reports whether the given user follows this profile.
func (p *Profile) IsFollowedBy(userID string) bool {
	return contains(p.Followers, userID)
}
