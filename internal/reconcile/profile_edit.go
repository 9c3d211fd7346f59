package reconcile

import (
	"fmt"

	"gamelysync/internal/entity"
	"gamelysync/internal/mutate"
)

// ProfileEdit carries the owner-editable profile fields; nil means leave
// the field as it is.
type ProfileEdit struct {
	DisplayName   *string  `json:"display_name,omitempty"`
	Bio           *string  `json:"bio,omitempty"`
	AvatarURL     *string  `json:"avatar_url,omitempty"`
	BannerURL     *string  `json:"banner_url,omitempty"`
	FavoriteGames []string `json:"favorite_games,omitempty"`
}

// EditProfile builds the mutation applying a partial profile edit.
func EditProfile(selfID string, edit ProfileEdit) mutate.Mutation {
	return mutate.Mutation{
		Name: "edit-profile",
		Kind: entity.KindProfile,
		ID:   selfID,
		Apply: func(e entity.Entity) (entity.Entity, error) {
			p, ok := e.(*entity.Profile)
			if !ok {
				return nil, fmt.Errorf("edit-profile: %s is not a profile", selfID)
			}
			if edit.DisplayName != nil {
				p.DisplayName = *edit.DisplayName
			}
			if edit.Bio != nil {
				p.Bio = *edit.Bio
			}
			if edit.AvatarURL != nil {
				p.AvatarURL = *edit.AvatarURL
			}
			if edit.BannerURL != nil {
				p.BannerURL = *edit.BannerURL
			}
			if edit.FavoriteGames != nil {
				games := make([]string, len(edit.FavoriteGames))
				copy(games, edit.FavoriteGames)
				p.FavoriteGames = games
			}
			return p, nil
		},
	}
}
