package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gamelysync/internal/entity"
	"gamelysync/internal/feed"
	"gamelysync/internal/gateway"
	"gamelysync/internal/mutate"
	"gamelysync/internal/reconcile"
)

// ProfileStats carries the counts a profile header renders, derived from
// the relationship sets at call time.
type ProfileStats struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
}

// Stats derives a profile's displayed counts.
func Stats(p *entity.Profile) ProfileStats {
	followers, _ := reconcile.DeriveCount(p, reconcile.FieldFollowers)
	following, _ := reconcile.DeriveCount(p, reconcile.FieldFollowing)
	return ProfileStats{Followers: followers, Following: following}
}

// Profile returns a profile through the cache.
func (c *Client) Profile(ctx context.Context, id string) (*entity.Profile, error) {
	e, err := c.cache.Get(ctx, entity.KindProfile, id)
	if err != nil {
		return nil, err
	}
	p, ok := e.(*entity.Profile)
	if !ok {
		return nil, fmt.Errorf("client: %s is not a profile", id)
	}
	return p, nil
}

// Post returns a post through the cache.
func (c *Client) Post(ctx context.Context, id string) (*entity.Post, error) {
	e, err := c.cache.Get(ctx, entity.KindPost, id)
	if err != nil {
		return nil, err
	}
	p, ok := e.(*entity.Post)
	if !ok {
		return nil, fmt.Errorf("client: %s is not a post", id)
	}
	return p, nil
}

// Follow makes the signed-in user follow otherID. The returned profile is
// the other user's optimistic snapshot with the follower already present;
// the settlement channel reports the remote outcome.
func (c *Client) Follow(ctx context.Context, otherID string) (*entity.Profile, <-chan error, error) {
	return c.followOp(ctx, otherID, true)
}

// Unfollow reverses Follow with the same optimistic contract.
func (c *Client) Unfollow(ctx context.Context, otherID string) (*entity.Profile, <-chan error, error) {
	return c.followOp(ctx, otherID, false)
}

// ToggleFollow follows when not following, unfollows otherwise.
func (c *Client) ToggleFollow(ctx context.Context, otherID string) (*entity.Profile, <-chan error, error) {
	s, err := c.requireSession()
	if err != nil {
		return nil, nil, err
	}
	self, err := c.Profile(ctx, s.UserID)
	if err != nil {
		return nil, nil, err
	}
	return c.followOp(ctx, otherID, !self.IsFollowing(otherID))
}

func (c *Client) followOp(ctx context.Context, otherID string, follow bool) (*entity.Profile, <-chan error, error) {
	s, err := c.requireSession()
	if err != nil {
		return nil, nil, err
	}
	if s.UserID == otherID {
		return nil, nil, fmt.Errorf("client: cannot follow yourself")
	}

	var compound mutate.Compound
	if follow {
		compound = reconcile.Follow(s.UserID, otherID)
	} else {
		compound = reconcile.Unfollow(s.UserID, otherID)
	}
	other, _, settled, err := c.engine.DoCompound(ctx, compound)
	if err != nil {
		return nil, nil, err
	}
	return other.(*entity.Profile), settled, nil
}

// ToggleLike flips the signed-in user's like on a post and returns the
// optimistic snapshot.
func (c *Client) ToggleLike(ctx context.Context, postID string) (*entity.Post, <-chan error, error) {
	s, err := c.requireSession()
	if err != nil {
		return nil, nil, err
	}
	e, settled, err := c.engine.Do(ctx, reconcile.ToggleLike(s.UserID, postID))
	if err != nil {
		return nil, nil, err
	}
	return e.(*entity.Post), settled, nil
}

// UpdateProfile applies a partial edit to the signed-in user's profile.
func (c *Client) UpdateProfile(ctx context.Context, edit reconcile.ProfileEdit) (*entity.Profile, <-chan error, error) {
	s, err := c.requireSession()
	if err != nil {
		return nil, nil, err
	}
	e, settled, err := c.engine.Do(ctx, reconcile.EditProfile(s.UserID, edit))
	if err != nil {
		return nil, nil, err
	}
	return e.(*entity.Profile), settled, nil
}

// CreatePost writes a new post remotely, caches it, and bumps the author's
// cached post count optimistically.
func (c *Client) CreatePost(ctx context.Context, mediaURLs []string, caption, gameTag string) (*entity.Post, error) {
	s, err := c.requireSession()
	if err != nil {
		return nil, err
	}
	post := &entity.Post{
		ID:        uuid.NewString(),
		AuthorID:  s.UserID,
		Media:     mediaURLs,
		Caption:   caption,
		GameTag:   gameTag,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := c.createEntity(ctx, post); err != nil {
		return nil, err
	}

	_, _, err = c.engine.Do(ctx, mutate.Mutation{
		Name: "bump-post-count",
		Kind: entity.KindProfile,
		ID:   s.UserID,
		Apply: func(e entity.Entity) (entity.Entity, error) {
			p, ok := e.(*entity.Profile)
			if !ok {
				return nil, fmt.Errorf("bump-post-count: %s is not a profile", s.UserID)
			}
			p.PostCount++
			return p, nil
		},
	})
	if err != nil {
		// the post itself is durable; the count catches up on refetch
		c.cache.Invalidate(entity.KindProfile, s.UserID)
	}
	return post, nil
}

// CreateStory writes a new story with its overlays and optional track.
func (c *Client) CreateStory(ctx context.Context, mediaURLs []string, caption string, overlays []entity.Overlay, track *entity.Track) (*entity.Story, error) {
	s, err := c.requireSession()
	if err != nil {
		return nil, err
	}
	if track != nil {
		overlays = append(overlays, entity.Overlay{
			Kind:     entity.OverlayMusic,
			Track:    track,
			Position: entity.Position{X: 0.5, Y: 0.9},
			Scale:    1,
		})
	}
	story := &entity.Story{
		ID:        uuid.NewString(),
		AuthorID:  s.UserID,
		Media:     mediaURLs,
		Caption:   caption,
		Overlays:  overlays,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := c.createEntity(ctx, story); err != nil {
		return nil, err
	}
	return story, nil
}

func (c *Client) createEntity(ctx context.Context, e entity.Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}
	patch, err := gateway.FullPatch(e)
	if err != nil {
		return err
	}
	if err := c.gw.Write(ctx, e.Kind(), e.EntityID(), patch); err != nil {
		return err
	}
	c.cache.Put(e)
	return nil
}

// Feed returns the next feed page.
func (c *Client) Feed(ctx context.Context, cursor *feed.Cursor, limit int) ([]feed.Item, *feed.Cursor, error) {
	return c.feed.Page(ctx, cursor, limit)
}

// Stories returns the unexpired story rail.
func (c *Client) Stories(ctx context.Context) ([]feed.StoryItem, error) {
	return c.feed.Stories(ctx)
}

// Notifications streams the signed-in user's notifications live until ctx
// is cancelled.
func (c *Client) Notifications(ctx context.Context) (<-chan *entity.Notification, error) {
	s, err := c.requireSession()
	if err != nil {
		return nil, err
	}
	changes, err := c.gw.Subscribe(ctx, entity.KindNotification, gateway.Query{
		Filters: []gateway.Filter{gateway.Where("userId", gateway.FilterEq, s.UserID)},
	})
	if err != nil {
		return nil, err
	}
	out := make(chan *entity.Notification, 16)
	go func() {
		defer close(out)
		for change := range changes {
			if change.Deleted {
				continue
			}
			if n, ok := change.Entity.(*entity.Notification); ok {
				out <- n
			}
		}
	}()
	return out, nil
}

// SearchMusic queries the external track search API.
func (c *Client) SearchMusic(ctx context.Context, query string) ([]entity.Track, error) {
	return c.music.Search(ctx, query)
}

// UploadMedia pushes bytes to object storage and returns the public URL.
func (c *Client) UploadMedia(ctx context.Context, name, folder string, data []byte) (string, error) {
	if _, err := c.requireSession(); err != nil {
		return "", err
	}
	return c.media.Upload(ctx, name, folder, "", data)
}
