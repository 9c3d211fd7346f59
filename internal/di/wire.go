//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"gamelysync/internal/client"
	"gamelysync/internal/config"
	"gamelysync/internal/gateway"
	"gamelysync/internal/media"
)

// InitializeClient assembles the sync client from a gateway, a media
// store, and config; wire generates the real body.
func InitializeClient(gw gateway.Gateway, mediaStore media.Store, cfg *config.Config) *client.Client {
	wire.Build(
		provideCache,
		provideEngine,
		provideAssembler,
		provideTokens,
		provideAuthProvider,
		provideMusic,
		client.New,
	)
	return &client.Client{}
}
