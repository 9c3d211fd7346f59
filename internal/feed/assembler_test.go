package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gamelysync/internal/cache"
	"gamelysync/internal/entity"
	"gamelysync/internal/gateway"
)

func testAssembler(t *testing.T) (*gateway.Memory, *cache.Cache, *Assembler) {
	t.Helper()
	m := gateway.NewMemory()
	c := cache.New(m, time.Hour)
	return m, c, New(m, c)
}

func seedAuthor(t *testing.T, m *gateway.Memory, id, name string) {
	t.Helper()
	require.NoError(t, m.Seed(&entity.Profile{
		ID:          id,
		Handle:      "h_" + id,
		DisplayName: name,
		AvatarURL:   "https://cdn/" + id + ".png",
		CreatedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}))
}

func seedPost(t *testing.T, m *gateway.Memory, id, author string, created time.Time) {
	t.Helper()
	require.NoError(t, m.Seed(&entity.Post{
		ID:        id,
		AuthorID:  author,
		Caption:   "caption " + id,
		CreatedAt: created,
	}))
}

func collectIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.Post.ID)
	}
	return ids
}

func TestPageOrdersNewestFirst(t *testing.T) {
	m, _, a := testAssembler(t)
	seedAuthor(t, m, "u1", "Alice")
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedPost(t, m, "p1", "u1", t0)
	seedPost(t, m, "p2", "u1", t0.Add(time.Minute))
	seedPost(t, m, "p3", "u1", t0.Add(2*time.Minute))

	items, cur, err := a.Page(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"p3", "p2", "p1"}, collectIDs(items))
	require.Equal(t, "p1", cur.PostID)
	require.True(t, t0.Equal(cur.CreatedAt))

	require.Equal(t, "Alice", items[0].AuthorName)
	require.Equal(t, "h_u1", items[0].AuthorHandle)
}

func TestPagesNeverRepeatAcrossCursor(t *testing.T) {
	m, _, a := testAssembler(t)
	seedAuthor(t, m, "u1", "Alice")
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		seedPost(t, m, id, "u1", t0.Add(time.Duration(i)*time.Minute))
	}

	seen := make(map[string]bool)
	var cur *Cursor
	var total int
	for {
		items, next, err := a.Page(context.Background(), cur, 2)
		require.NoError(t, err)
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			require.False(t, seen[it.Post.ID], "post %s emitted twice", it.Post.ID)
			seen[it.Post.ID] = true
		}
		total += len(items)
		cur = next
	}
	require.Equal(t, 5, total)
}

func TestIdenticalTimestampsPageByIDTieBreak(t *testing.T) {
	m, _, a := testAssembler(t)
	seedAuthor(t, m, "u1", "Alice")
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		seedPost(t, m, id, "u1", ts)
	}

	items, cur, err := a.Page(context.Background(), nil, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, collectIDs(items))

	items, _, err = a.Page(context.Background(), cur, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"p3", "p4"}, collectIDs(items))
}

func TestTieGroupWiderThanFetchWindowPagesCompletely(t *testing.T) {
	m, _, a := testAssembler(t)
	seedAuthor(t, m, "u1", "Alice")

	// 25 posts share one timestamp, more than twice the page size, plus one
	// older post behind the group
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	want := make(map[string]bool)
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("p%02d", i)
		seedPost(t, m, id, "u1", ts)
		want[id] = true
	}
	seedPost(t, m, "q-older", "u1", ts.Add(-time.Hour))
	want["q-older"] = true

	got := make(map[string]bool)
	var cur *Cursor
	for {
		items, next, err := a.Page(context.Background(), cur, 10)
		require.NoError(t, err)
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			require.False(t, got[it.Post.ID], "post %s emitted twice", it.Post.ID)
			got[it.Post.ID] = true
		}
		cur = next
	}

	// nothing inside or behind the tie group is lost
	require.Equal(t, want, got)
}

func TestPageBatchesAuthorLookups(t *testing.T) {
	m, _, a := testAssembler(t)
	seedAuthor(t, m, "u1", "Alice")
	seedAuthor(t, m, "u2", "Bob")
	seedAuthor(t, m, "u3", "Carol")
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, author := range []string{"u1", "u2", "u3", "u1", "u2", "u3"} {
		seedPost(t, m, string(rune('a'+i)), author, t0.Add(time.Duration(i)*time.Minute))
	}

	items, _, err := a.Page(context.Background(), nil, 6)
	require.NoError(t, err)
	require.Len(t, items, 6)

	// one query for the page, one batched query for all three authors
	require.Equal(t, 1, m.QueryCount(entity.KindProfile))
}

func TestPageServesAuthorsFromCache(t *testing.T) {
	m, c, a := testAssembler(t)
	seedAuthor(t, m, "u1", "Alice")
	seedPost(t, m, "p1", "u1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	prof, err := m.Fetch(context.Background(), entity.KindProfile, "u1")
	require.NoError(t, err)
	c.Put(prof)

	items, _, err := a.Page(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Equal(t, "Alice", items[0].AuthorName)
	require.Equal(t, 0, m.QueryCount(entity.KindProfile))
}

func TestPageWithDeletedAuthorKeepsPost(t *testing.T) {
	m, _, a := testAssembler(t)
	// the author document never existed; the post still renders
	seedPost(t, m, "p1", "ghost", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	items, _, err := a.Page(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Empty(t, items[0].AuthorName)
	require.Empty(t, items[0].AuthorHandle)
}

func TestPageErrorDoesNotConsumeIDs(t *testing.T) {
	m, _, a := testAssembler(t)
	seedAuthor(t, m, "u1", "Alice")
	seedPost(t, m, "p1", "u1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	m.FailNext("query", entity.KindProfile, "", gateway.ErrUnavailable)
	_, _, err := a.Page(context.Background(), nil, 10)
	require.Error(t, err)

	// the retry still delivers the post that failed to resolve
	items, _, err := a.Page(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, collectIDs(items))
}

func TestResetStartsNewSession(t *testing.T) {
	m, _, a := testAssembler(t)
	seedAuthor(t, m, "u1", "Alice")
	seedPost(t, m, "p1", "u1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	items, _, err := a.Page(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// same range again in the same session: already emitted
	items, _, err = a.Page(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Empty(t, items)

	a.Reset()
	items, _, err = a.Page(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestStoriesFilterExpired(t *testing.T) {
	m, _, a := testAssembler(t)
	seedAuthor(t, m, "u1", "Alice")

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	a.SetClock(func() time.Time { return now })

	require.NoError(t, m.Seed(&entity.Story{
		ID:        "fresh",
		AuthorID:  "u1",
		CreatedAt: now.Add(-2 * time.Hour),
	}))
	require.NoError(t, m.Seed(&entity.Story{
		ID:        "expired",
		AuthorID:  "u1",
		CreatedAt: now.Add(-25 * time.Hour),
	}))

	items, err := a.Stories(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "fresh", items[0].Story.ID)
	require.Equal(t, "Alice", items[0].AuthorName)
}

func TestStoriesEmptyRail(t *testing.T) {
	_, _, a := testAssembler(t)
	items, err := a.Stories(context.Background())
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestOnRefreshFiresOnCachedFeedData(t *testing.T) {
	m, c, a := testAssembler(t)
	seedAuthor(t, m, "u1", "Alice")

	var fired int
	a.OnRefresh(func() { fired++ })

	c.Put(&entity.Post{ID: "p1", AuthorID: "u1", CreatedAt: time.Now()})
	require.Equal(t, 1, fired)

	// a change on an unrelated collection does not trigger a re-render
	c.Put(&entity.Game{ID: "g1", Title: "Valorant"})
	require.Equal(t, 1, fired)
}
