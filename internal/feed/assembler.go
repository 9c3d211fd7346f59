// Package feed merges paginated post queries with batched author lookups
// into a single ordered, de-duplicated view.
package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"gamelysync/internal/cache"
	"gamelysync/internal/entity"
	"gamelysync/internal/gateway"
)

// DefaultPageSize is the feed page length when the caller passes none.
const DefaultPageSize = 10

// Cursor marks the last emitted post. Ordering is createdAt descending
// with ties broken by post id ascending, so the pair is a total position.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	PostID    string    `json:"post_id"`
}

// Item is a post joined with the author fields the feed renders.
type Item struct {
	Post         *entity.Post `json:"post"`
	AuthorName   string       `json:"author_name"`
	AuthorHandle string       `json:"author_handle"`
	AuthorAvatar string       `json:"author_avatar"`
}

// StoryItem is an unexpired story joined with author display fields.
type StoryItem struct {
	Story        *entity.Story `json:"story"`
	AuthorName   string        `json:"author_name"`
	AuthorHandle string        `json:"author_handle"`
	AuthorAvatar string        `json:"author_avatar"`
}

// Assembler pages through posts and resolves authors through the cache,
// falling back to one batched gateway query for the misses instead of one
// lookup per post. A paging session never emits the same post id twice.
type Assembler struct {
	gw    gateway.Gateway
	cache *cache.Cache
	now   func() time.Time

	mu      sync.Mutex
	seen    map[string]struct{}
	refresh []func()
}

func New(gw gateway.Gateway, c *cache.Cache) *Assembler {
	a := &Assembler{
		gw:    gw,
		cache: c,
		now:   time.Now,
		seen:  make(map[string]struct{}),
	}
	c.OnChange(func(kind entity.Kind, _ string) {
		switch kind {
		case entity.KindPost, entity.KindStory, entity.KindProfile:
			a.notifyRefresh()
		}
	})
	return a
}

// SetClock overrides the expiry clock, for tests.
func (a *Assembler) SetClock(now func() time.Time) { a.now = now }

// OnRefresh registers a callback fired when cached feed data changes, so a
// screen can re-render incrementally.
func (a *Assembler) OnRefresh(fn func()) {
	a.mu.Lock()
	a.refresh = append(a.refresh, fn)
	a.mu.Unlock()
}

func (a *Assembler) notifyRefresh() {
	a.mu.Lock()
	fns := a.refresh
	a.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Reset starts a new paging session, forgetting emitted ids.
func (a *Assembler) Reset() {
	a.mu.Lock()
	a.seen = make(map[string]struct{})
	a.mu.Unlock()
}

// Page returns the next feed page after the cursor, plus the cursor for
// the following page. Posts created mid-session may appear on later reads
// of earlier ranges (read skew is acceptable) but no post is ever emitted
// twice and none in a non-overlapping range is lost.
func (a *Assembler) Page(ctx context.Context, cur *Cursor, limit int) ([]Item, *Cursor, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	var posts []*entity.Post
	probe := cur
	for len(posts) < limit {
		batch, err := a.postsAfter(ctx, probe, limit*2)
		if err != nil {
			return nil, cur, err
		}
		if len(batch) == 0 {
			break // collection exhausted
		}
		for _, p := range batch {
			if a.markSeen(p.ID) {
				continue
			}
			a.cache.Put(p)
			posts = append(posts, p)
			if len(posts) == limit {
				break
			}
		}
		// every batch entry sorts strictly after the probe, so this always
		// advances even when the whole batch was already seen
		last := batch[len(batch)-1]
		probe = &Cursor{CreatedAt: last.CreatedAt, PostID: last.ID}
	}

	if len(posts) == 0 {
		return nil, cur, nil
	}

	authors, err := a.resolveAuthors(ctx, authorIDs(posts))
	if err != nil {
		// the page was not delivered; let a retry emit these ids
		a.mu.Lock()
		for _, p := range posts {
			delete(a.seen, p.ID)
		}
		a.mu.Unlock()
		return nil, cur, err
	}

	items := make([]Item, 0, len(posts))
	for _, p := range posts {
		it := Item{Post: p}
		if prof, ok := authors[p.AuthorID]; ok {
			it.AuthorName = prof.DisplayName
			it.AuthorHandle = prof.Handle
			it.AuthorAvatar = prof.AvatarURL
		}
		items = append(items, it)
	}
	tail := posts[len(posts)-1]
	return items, &Cursor{CreatedAt: tail.CreatedAt, PostID: tail.ID}, nil
}

// postsAfter returns up to n posts sorting strictly after the cursor in
// feed order. The cursor exclusion is part of the query: posts tied on the
// cursor timestamp are fetched by id range and older posts by timestamp
// range, so a tie group wider than any fetch window can never stall a page.
func (a *Assembler) postsAfter(ctx context.Context, cur *Cursor, n int) ([]*entity.Post, error) {
	base := gateway.Query{OrderBy: "createdAt", Descending: true, Limit: n}
	if cur == nil {
		ents, err := a.gw.Query(ctx, entity.KindPost, base)
		if err != nil {
			return nil, err
		}
		return asPosts(ents), nil
	}

	tied := base
	tied.Filters = []gateway.Filter{
		gateway.Where("createdAt", gateway.FilterEq, cur.CreatedAt),
		gateway.Where("_id", gateway.FilterGt, cur.PostID),
	}
	ents, err := a.gw.Query(ctx, entity.KindPost, tied)
	if err != nil {
		return nil, err
	}
	out := asPosts(ents)
	if len(out) >= n {
		return out[:n], nil
	}

	older := base
	older.Limit = n - len(out)
	older.Filters = []gateway.Filter{gateway.Where("createdAt", gateway.FilterLt, cur.CreatedAt)}
	ents, err = a.gw.Query(ctx, entity.KindPost, older)
	if err != nil {
		return nil, err
	}
	return append(out, asPosts(ents)...), nil
}

func asPosts(ents []entity.Entity) []*entity.Post {
	out := make([]*entity.Post, 0, len(ents))
	for _, e := range ents {
		if p, ok := e.(*entity.Post); ok {
			out = append(out, p)
		}
	}
	return out
}

// Stories returns the unexpired story rail, newest first. Expiry is
// filtered in the query and re-checked client-side as a fallback.
func (a *Assembler) Stories(ctx context.Context) ([]StoryItem, error) {
	now := a.now()
	ents, err := a.gw.Query(ctx, entity.KindStory, gateway.Query{
		Filters:    []gateway.Filter{gateway.Where("createdAt", gateway.FilterGt, now.Add(-entity.StoryTTL))},
		OrderBy:    "createdAt",
		Descending: true,
	})
	if err != nil {
		return nil, err
	}

	var stories []*entity.Story
	for _, e := range ents {
		s, ok := e.(*entity.Story)
		if !ok || s.Expired(now) {
			continue
		}
		a.cache.Put(s)
		stories = append(stories, s)
	}
	if len(stories) == 0 {
		return nil, nil
	}

	ids := make(map[string]struct{}, len(stories))
	for _, s := range stories {
		ids[s.AuthorID] = struct{}{}
	}
	authors, err := a.resolveAuthors(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]StoryItem, 0, len(stories))
	for _, s := range stories {
		it := StoryItem{Story: s}
		if prof, ok := authors[s.AuthorID]; ok {
			it.AuthorName = prof.DisplayName
			it.AuthorHandle = prof.Handle
			it.AuthorAvatar = prof.AvatarURL
		}
		items = append(items, it)
	}
	return items, nil
}

// resolveAuthors serves authors from the cache and issues a single batched
// query for the misses, never one query per post.
func (a *Assembler) resolveAuthors(ctx context.Context, ids map[string]struct{}) (map[string]*entity.Profile, error) {
	out := make(map[string]*entity.Profile, len(ids))
	var missing []string
	for id := range ids {
		if e, ok := a.cache.Peek(entity.KindProfile, id); ok {
			if p, ok := e.(*entity.Profile); ok {
				out[id] = p
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}
	sort.Strings(missing)

	ents, err := a.gw.Query(ctx, entity.KindProfile, gateway.Query{
		Filters: []gateway.Filter{gateway.Where("_id", gateway.FilterIn, missing)},
	})
	if err != nil {
		return nil, err
	}
	for _, e := range ents {
		if p, ok := e.(*entity.Profile); ok {
			a.cache.Put(p)
			out[p.ID] = p
		}
	}
	// authors deleted since posting simply stay unresolved; the feed
	// renders those items with empty author fields rather than failing
	return out, nil
}

func (a *Assembler) markSeen(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.seen[id]; ok {
		return true
	}
	a.seen[id] = struct{}{}
	return false
}

func authorIDs(posts []*entity.Post) map[string]struct{} {
	ids := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		ids[p.AuthorID] = struct{}{}
	}
	return ids
}
