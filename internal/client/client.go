// Package client is the application root of the sync layer: it owns the
// session, the cache, and the mutation engine, and exposes the operations
// the screens call. No state here is process-global; screens receive the
// client explicitly.
package client

import (
	"context"
	"errors"
	"sync"

	"gamelysync/internal/auth"
	"gamelysync/internal/cache"
	"gamelysync/internal/feed"
	"gamelysync/internal/gateway"
	"gamelysync/internal/media"
	"gamelysync/internal/music"
	"gamelysync/internal/mutate"
)

type Client struct {
	gw     gateway.Gateway
	cache  *cache.Cache
	engine *mutate.Engine
	feed   *feed.Assembler
	auth   auth.Provider
	music  *music.Client
	media  media.Store

	mu      sync.Mutex
	session *auth.Session
}

func New(gw gateway.Gateway, c *cache.Cache, engine *mutate.Engine, assembler *feed.Assembler,
	provider auth.Provider, musicClient *music.Client, mediaStore media.Store) *Client {
	return &Client{
		gw:     gw,
		cache:  c,
		engine: engine,
		feed:   assembler,
		auth:   provider,
		music:  musicClient,
		media:  mediaStore,
	}
}

// Cache exposes the entity cache for read-model consumers.
func (c *Client) Cache() *cache.Cache { return c.cache }

// FeedAssembler exposes the feed assembler, e.g. to register refresh hooks.
func (c *Client) FeedAssembler() *feed.Assembler { return c.feed }

// Close drains pending mutations and shuts the engine down.
func (c *Client) Close() { c.engine.Close() }

func (c *Client) requireSession() (*auth.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, gateway.Fail(gateway.ErrUnauthenticated, "session", errors.New("not signed in"))
	}
	return c.session, nil
}

// Session returns the current session, nil when signed out.
func (c *Client) Session() *auth.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) SignUp(ctx context.Context, handle, email, password string) (*auth.Session, error) {
	s, err := c.auth.SignUp(ctx, handle, email, password)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return s, nil
}

func (c *Client) SignIn(ctx context.Context, identifier, secret string) (*auth.Session, error) {
	s, err := c.auth.SignIn(ctx, identifier, secret)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return s, nil
}

// SignOut tears the session down explicitly.
func (c *Client) SignOut() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}
