package entity

import (
	"errors"
	"time"
)

// StoryTTL is how long a story stays visible after creation.
const StoryTTL = 24 * time.Hour

type OverlayKind string

const (
	OverlayText    OverlayKind = "text"
	OverlaySticker OverlayKind = "sticker"
	OverlayMusic   OverlayKind = "music"
)

// Position is a normalized 2D placement on the story canvas.
type Position struct {
	X float64 `bson:"x" json:"x"`
	Y float64 `bson:"y" json:"y"`
}

// Track is a music selection from the external search API.
type Track struct {
	ID         string `bson:"id" json:"id"`
	Name       string `bson:"name" json:"name"`
	Artist     string `bson:"artist" json:"artist"`
	PreviewURL string `bson:"previewUrl,omitempty" json:"preview_url,omitempty"`
}

// Overlay is a positioned element drawn over story media.
type Overlay struct {
	Kind       OverlayKind `bson:"kind" json:"kind"`
	Text       string      `bson:"text,omitempty" json:"text,omitempty"`
	StickerURL string      `bson:"stickerUrl,omitempty" json:"sticker_url,omitempty"`
	Track      *Track      `bson:"track,omitempty" json:"track,omitempty"`
	Position   Position    `bson:"position" json:"position"`
	Scale      float64     `bson:"scale" json:"scale"`
}

// Story is an ephemeral post from the stories collection.
type Story struct {
	ID        string    `bson:"_id" json:"id"`
	AuthorID  string    `bson:"authorId" json:"author_id"`
	Media     []string  `bson:"media,omitempty" json:"media,omitempty"`
	Caption   string    `bson:"caption,omitempty" json:"caption,omitempty"`
	Overlays  []Overlay `bson:"overlays,omitempty" json:"overlays,omitempty"`
	Likes     []string  `bson:"likes,omitempty" json:"likes,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

func (s *Story) Kind() Kind       { return KindStory }
func (s *Story) EntityID() string { return s.ID }

func (s *Story) Clone() Entity {
	cp := *s
	cp.Media = cloneStrings(s.Media)
	cp.Likes = cloneStrings(s.Likes)
	if s.Overlays != nil {
		cp.Overlays = make([]Overlay, len(s.Overlays))
		copy(cp.Overlays, s.Overlays)
		for i, o := range s.Overlays {
			if o.Track != nil {
				t := *o.Track
				cp.Overlays[i].Track = &t
			}
		}
	}
	return &cp
}

func (s *Story) Validate() error {
	if s.ID == "" {
		return errors.New("story: missing id")
	}
	if s.AuthorID == "" {
		return errors.New("story: missing author id")
	}
	if s.CreatedAt.IsZero() {
		return errors.New("story: missing created timestamp")
	}
	for _, o := range s.Overlays {
		switch o.Kind {
		case OverlayText, OverlaySticker, OverlayMusic:
		default:
			return errors.New("story: unknown overlay kind")
		}
		if o.Scale <= 0 {
			return errors.New("story: overlay scale must be positive")
		}
	}
	return nil
}

// ExpiresAt is the moment the story drops out of all reads.
func (s *Story) ExpiresAt() time.Time {
	return s.CreatedAt.Add(StoryTTL)
}

// Expired reports whether the story is past its TTL at the given instant.
func (s *Story) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt())
}
