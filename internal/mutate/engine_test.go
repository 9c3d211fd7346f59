package mutate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"gamelysync/internal/cache"
	"gamelysync/internal/entity"
	"gamelysync/internal/gateway"
)

func newTestEngine(t *testing.T, gw gateway.Gateway) (*Engine, *cache.Cache) {
	t.Helper()
	c := cache.New(gw, time.Hour)
	e := New(gw, c, Options{RetryBase: time.Millisecond})
	e.SetSleep(func(context.Context, time.Duration) error { return nil })
	t.Cleanup(e.Close)
	return e, c
}

func toggleLike(userID, postID string) Mutation {
	return Mutation{
		Name: "toggle-like",
		Kind: entity.KindPost,
		ID:   postID,
		Apply: func(e entity.Entity) (entity.Entity, error) {
			p, ok := e.(*entity.Post)
			if !ok {
				return nil, fmt.Errorf("%s is not a post", postID)
			}
			if p.LikedBy(userID) {
				p.Likes = remove(p.Likes, userID)
			} else {
				p.Likes = append(p.Likes, userID)
			}
			return p, nil
		},
	}
}

func remove(list []string, id string) []string {
	var out []string
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func seedPost(t *testing.T, m *gateway.Memory, id string, likes ...string) {
	t.Helper()
	require.NoError(t, m.Seed(&entity.Post{
		ID:        id,
		AuthorID:  "author",
		Likes:     likes,
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}))
}

func waitSettled(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("mutation never settled")
		return nil
	}
}

func TestDoAppliesOptimisticallyAndAcks(t *testing.T) {
	m := gateway.NewMemory()
	e, c := newTestEngine(t, m)
	seedPost(t, m, "p1")

	snap, settled, err := e.Do(context.Background(), toggleLike("u1", "p1"))
	require.NoError(t, err)

	// the snapshot shows the change before any remote round trip
	require.Equal(t, []string{"u1"}, snap.(*entity.Post).Likes)

	// the cache already serves the optimistic state
	peeked, ok := c.Peek(entity.KindPost, "p1")
	require.True(t, ok)
	require.Equal(t, []string{"u1"}, peeked.(*entity.Post).Likes)

	require.NoError(t, waitSettled(t, settled))

	// the backend converged on the same state
	remote, err := m.Fetch(context.Background(), entity.KindPost, "p1")
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, remote.(*entity.Post).Likes)
}

func TestInPlaceApplyStillWritesRemotely(t *testing.T) {
	m := gateway.NewMemory()
	e, _ := newTestEngine(t, m)
	seedPost(t, m, "p1")

	// toggleLike mutates its argument and returns it, like the production
	// mutation builders do; the engine must still see a before/after
	// difference and issue exactly one remote write.
	_, settled, err := e.Do(context.Background(), toggleLike("u1", "p1"))
	require.NoError(t, err)
	require.NoError(t, waitSettled(t, settled))

	require.Equal(t, 1, m.WriteCount(entity.KindPost, "p1"))
	remote, err := m.Fetch(context.Background(), entity.KindPost, "p1")
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, remote.(*entity.Post).Likes)
}

func TestDoSnapshotIsIsolated(t *testing.T) {
	m := gateway.NewMemory()
	e, c := newTestEngine(t, m)
	seedPost(t, m, "p1")

	snap, settled, err := e.Do(context.Background(), toggleLike("u1", "p1"))
	require.NoError(t, err)
	snap.(*entity.Post).Likes[0] = "mutated by caller"
	require.NoError(t, waitSettled(t, settled))

	peeked, _ := c.Peek(entity.KindPost, "p1")
	require.Equal(t, []string{"u1"}, peeked.(*entity.Post).Likes)
}

func TestDoRejectsInvalidResult(t *testing.T) {
	m := gateway.NewMemory()
	e, c := newTestEngine(t, m)
	seedPost(t, m, "p1")

	_, _, err := e.Do(context.Background(), Mutation{
		Name: "corrupt",
		Kind: entity.KindPost,
		ID:   "p1",
		Apply: func(e entity.Entity) (entity.Entity, error) {
			p := e.(*entity.Post)
			p.AuthorID = ""
			return p, nil
		},
	})
	require.Error(t, err)

	// nothing was applied
	peeked, _ := c.Peek(entity.KindPost, "p1")
	require.Equal(t, "author", peeked.(*entity.Post).AuthorID)
}

func TestDoMissingEntity(t *testing.T) {
	m := gateway.NewMemory()
	e, _ := newTestEngine(t, m)

	_, _, err := e.Do(context.Background(), toggleLike("u1", "ghost"))
	require.True(t, gateway.IsKind(err, gateway.ErrNotFound))
}

func TestTerminalFailureRollsBackExactly(t *testing.T) {
	m := gateway.NewMemory()
	e, c := newTestEngine(t, m)
	seedPost(t, m, "p1", "u9")

	baseline, err := c.Get(context.Background(), entity.KindPost, "p1")
	require.NoError(t, err)

	m.FailNext("write", entity.KindPost, "p1", gateway.ErrPermissionDenied)
	_, settled, err := e.Do(context.Background(), toggleLike("u1", "p1"))
	require.NoError(t, err)

	serr := waitSettled(t, settled)
	require.True(t, gateway.IsKind(serr, gateway.ErrPermissionDenied))

	// no retry for a non-transient failure
	require.Equal(t, 1, m.WriteCount(entity.KindPost, "p1"))

	// the cache holds exactly the pre-mutation state
	peeked, ok := c.Peek(entity.KindPost, "p1")
	require.True(t, ok)
	require.True(t, entity.Equal(baseline, peeked))
}

func TestUnavailableRetriesThenTerminalConflict(t *testing.T) {
	m := gateway.NewMemory()
	e, c := newTestEngine(t, m)
	seedPost(t, m, "p1")

	m.FailNext("write", entity.KindPost, "p1",
		gateway.ErrUnavailable, gateway.ErrUnavailable, gateway.ErrUnavailable, gateway.ErrConflict)

	_, settled, err := e.Do(context.Background(), toggleLike("u1", "p1"))
	require.NoError(t, err)

	serr := waitSettled(t, settled)
	require.True(t, gateway.IsKind(serr, gateway.ErrConflict))

	// first attempt plus three retries, then the conflict stops everything
	require.Equal(t, 4, m.WriteCount(entity.KindPost, "p1"))

	// the conflict invalidated the entry; the next read returns backend truth
	e.Flush()
	got, err := c.Get(context.Background(), entity.KindPost, "p1")
	require.NoError(t, err)
	require.Empty(t, got.(*entity.Post).Likes)
	require.Equal(t, 4, m.WriteCount(entity.KindPost, "p1"))
}

func TestUnavailableRetryEventuallySucceeds(t *testing.T) {
	m := gateway.NewMemory()
	e, _ := newTestEngine(t, m)
	seedPost(t, m, "p1")

	m.FailNext("write", entity.KindPost, "p1", gateway.ErrUnavailable, gateway.ErrUnavailable)
	_, settled, err := e.Do(context.Background(), toggleLike("u1", "p1"))
	require.NoError(t, err)
	require.NoError(t, waitSettled(t, settled))
	require.Equal(t, 3, m.WriteCount(entity.KindPost, "p1"))
}

func TestMutationsOnOneEntitySettleInOrder(t *testing.T) {
	m := gateway.NewMemory()
	e, _ := newTestEngine(t, m)
	seedPost(t, m, "p1")

	_, s1, err := e.Do(context.Background(), toggleLike("u1", "p1"))
	require.NoError(t, err)
	_, s2, err := e.Do(context.Background(), toggleLike("u2", "p1"))
	require.NoError(t, err)

	require.NoError(t, waitSettled(t, s1))
	require.NoError(t, waitSettled(t, s2))

	remote, err := m.Fetch(context.Background(), entity.KindPost, "p1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"u1", "u2"}, remote.(*entity.Post).Likes)
}

func TestNoopMutationSkipsRemoteWrite(t *testing.T) {
	m := gateway.NewMemory()
	e, _ := newTestEngine(t, m)
	seedPost(t, m, "p1")

	_, settled, err := e.Do(context.Background(), Mutation{
		Name: "noop",
		Kind: entity.KindPost,
		ID:   "p1",
		Apply: func(e entity.Entity) (entity.Entity, error) {
			return e, nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, waitSettled(t, settled))
	require.Equal(t, 0, m.WriteCount(entity.KindPost, "p1"))
}

func TestRollbackReplaysLaterQueuedMutations(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gw := gateway.NewMockGateway(ctrl)
	e, c := newTestEngine(t, gw)

	post := &entity.Post{
		ID:        "p1",
		AuthorID:  "author",
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	gw.EXPECT().Fetch(gomock.Any(), entity.KindPost, "p1").Return(post.Clone(), nil)

	release := make(chan struct{})
	var calls int32
	gw.EXPECT().Write(gomock.Any(), entity.KindPost, "p1", gomock.Any()).
		DoAndReturn(func(context.Context, entity.Kind, string, gateway.Patch) error {
			if atomic.AddInt32(&calls, 1) == 1 {
				<-release
				return gateway.Fail(gateway.ErrPermissionDenied, "write", errors.New("denied"))
			}
			return nil
		}).
		Times(2)

	ctx := context.Background()
	_, s1, err := e.Do(ctx, toggleLike("u1", "p1"))
	require.NoError(t, err)
	_, s2, err := e.Do(ctx, toggleLike("u2", "p1"))
	require.NoError(t, err)
	close(release)

	require.True(t, gateway.IsKind(waitSettled(t, s1), gateway.ErrPermissionDenied))
	require.NoError(t, waitSettled(t, s2))

	// the failed like is gone, the queued one survived the rebase
	peeked, ok := c.Peek(entity.KindPost, "p1")
	require.True(t, ok)
	require.Equal(t, []string{"u2"}, peeked.(*entity.Post).Likes)
}

func TestEngineClosedRejectsNewWork(t *testing.T) {
	m := gateway.NewMemory()
	c := cache.New(m, time.Hour)
	e := New(m, c, Options{})
	seedPost(t, m, "p1")
	e.Close()

	_, _, err := e.Do(context.Background(), toggleLike("u1", "p1"))
	require.Error(t, err)
}
