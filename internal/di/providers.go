package di

import (
	"gamelysync/internal/auth"
	"gamelysync/internal/cache"
	"gamelysync/internal/config"
	"gamelysync/internal/feed"
	"gamelysync/internal/gateway"
	"gamelysync/internal/music"
	"gamelysync/internal/mutate"
)

func provideCache(gw gateway.Gateway, cfg *config.Config) *cache.Cache {
	return cache.New(gw, cfg.Cache.Freshness)
}

func provideEngine(gw gateway.Gateway, c *cache.Cache, cfg *config.Config) *mutate.Engine {
	return mutate.New(gw, c, mutate.Options{
		MaxRetries:   cfg.Sync.MaxRetries,
		RetryBase:    cfg.Sync.RetryBase,
		WriteTimeout: cfg.Sync.WriteTimeout,
	})
}

func provideAssembler(gw gateway.Gateway, c *cache.Cache) *feed.Assembler {
	return feed.New(gw, c)
}

func provideTokens(cfg *config.Config) *auth.TokenManager {
	return auth.NewTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
}

func provideAuthProvider(gw gateway.Gateway, tokens *auth.TokenManager) auth.Provider {
	return auth.NewLocalProvider(gw, tokens)
}

func provideMusic(cfg *config.Config) *music.Client {
	return music.NewClient(cfg.Music.BaseURL)
}
