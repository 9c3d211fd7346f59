package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"gamelysync/internal/entity"
	"gamelysync/internal/gateway"
)

func fakeProfile(id string) *entity.Profile {
	return &entity.Profile{ID: id, Handle: "h_" + id, CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
}

func TestGetReadsThroughOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gw := gateway.NewMockGateway(ctrl)
	c := New(gw, time.Hour)

	gw.EXPECT().Fetch(gomock.Any(), entity.KindProfile, "u1").
		Return(fakeProfile("u1"), nil).
		Times(1)

	ctx := context.Background()
	got, err := c.Get(ctx, entity.KindProfile, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", got.EntityID())

	// second read is served from the entry, no fetch
	again, err := c.Get(ctx, entity.KindProfile, "u1")
	require.NoError(t, err)
	require.True(t, entity.Equal(got, again))
}

func TestGetRefetchesWhenStale(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gw := gateway.NewMockGateway(ctrl)
	c := New(gw, 30*time.Second)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	gw.EXPECT().Fetch(gomock.Any(), entity.KindProfile, "u1").
		Return(fakeProfile("u1"), nil).
		Times(2)

	ctx := context.Background()
	_, err := c.Get(ctx, entity.KindProfile, "u1")
	require.NoError(t, err)

	now = now.Add(29 * time.Second)
	_, err = c.Get(ctx, entity.KindProfile, "u1")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, entity.KindProfile, "u1")
	require.NoError(t, err)
}

func TestGetPropagatesFetchError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gw := gateway.NewMockGateway(ctrl)
	c := New(gw, time.Hour)

	want := gateway.Fail(gateway.ErrNotFound, "fetch", errors.New("missing"))
	gw.EXPECT().Fetch(gomock.Any(), entity.KindProfile, "u1").Return(nil, want)

	_, err := c.Get(context.Background(), entity.KindProfile, "u1")
	require.True(t, gateway.IsKind(err, gateway.ErrNotFound))
}

func TestConcurrentGetsCoalesce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gw := gateway.NewMockGateway(ctrl)
	c := New(gw, time.Hour)

	var fetches int32
	gw.EXPECT().Fetch(gomock.Any(), entity.KindProfile, "u1").
		DoAndReturn(func(context.Context, entity.Kind, string) (entity.Entity, error) {
			atomic.AddInt32(&fetches, 1)
			time.Sleep(50 * time.Millisecond)
			return fakeProfile("u1"), nil
		}).
		MinTimes(1)

	start := make(chan struct{})
	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.Get(context.Background(), entity.KindProfile, "u1")
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestStaleFetchLosesToOptimisticWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gw := gateway.NewMockGateway(ctrl)
	c := New(gw, time.Hour)

	local := fakeProfile("u1")
	local.Bio = "written locally during fetch"
	remote := fakeProfile("u1")
	remote.Bio = "older remote state"

	gw.EXPECT().Fetch(gomock.Any(), entity.KindProfile, "u1").
		DoAndReturn(func(context.Context, entity.Kind, string) (entity.Entity, error) {
			// an optimistic write lands while the fetch is in flight
			c.Put(local)
			return remote, nil
		})

	got, err := c.Get(context.Background(), entity.KindProfile, "u1")
	require.NoError(t, err)
	require.Equal(t, "written locally during fetch", got.(*entity.Profile).Bio)

	peeked, ok := c.Peek(entity.KindProfile, "u1")
	require.True(t, ok)
	require.Equal(t, "written locally during fetch", peeked.(*entity.Profile).Bio)
}

func TestPutBumpsVersionAndServesClones(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	c := New(gateway.NewMockGateway(ctrl), time.Hour)

	p := fakeProfile("u1")
	require.Equal(t, uint64(0), c.Version(entity.KindProfile, "u1"))
	require.Equal(t, uint64(1), c.Put(p))
	require.Equal(t, uint64(2), c.Put(p))

	peeked, ok := c.Peek(entity.KindProfile, "u1")
	require.True(t, ok)
	peeked.(*entity.Profile).Handle = "mutated by caller"

	again, ok := c.Peek(entity.KindProfile, "u1")
	require.True(t, ok)
	require.Equal(t, "h_u1", again.(*entity.Profile).Handle)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gw := gateway.NewMockGateway(ctrl)
	c := New(gw, time.Hour)

	gw.EXPECT().Fetch(gomock.Any(), entity.KindProfile, "u1").
		Return(fakeProfile("u1"), nil).
		Times(2)

	ctx := context.Background()
	_, err := c.Get(ctx, entity.KindProfile, "u1")
	require.NoError(t, err)

	c.Invalidate(entity.KindProfile, "u1")
	_, err = c.Get(ctx, entity.KindProfile, "u1")
	require.NoError(t, err)
}

func TestMarkFreshExtendsEntry(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gw := gateway.NewMockGateway(ctrl)
	c := New(gw, 30*time.Second)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	gw.EXPECT().Fetch(gomock.Any(), entity.KindProfile, "u1").
		Return(fakeProfile("u1"), nil).
		Times(1)

	ctx := context.Background()
	_, err := c.Get(ctx, entity.KindProfile, "u1")
	require.NoError(t, err)

	now = now.Add(25 * time.Second)
	c.MarkFresh(entity.KindProfile, "u1")

	now = now.Add(25 * time.Second) // 50s after fetch but 25s after the ack
	_, err = c.Get(ctx, entity.KindProfile, "u1")
	require.NoError(t, err)
}

func TestOnChangeFires(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	c := New(gateway.NewMockGateway(ctrl), time.Hour)

	var events []string
	c.OnChange(func(kind entity.Kind, id string) {
		events = append(events, string(kind)+"/"+id)
	})

	c.Put(fakeProfile("u1"))
	c.Invalidate(entity.KindProfile, "u1")
	require.Equal(t, []string{"users/u1", "users/u1"}, events)
}
