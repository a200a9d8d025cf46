package mongodb

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("mongodb",
	fx.Provide(
		NewGateway,
		fx.Annotate(
			func(g *Gateway) Store { return g },
			fx.As(new(Store)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, g *Gateway) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return g.Connect(ctx)
			},
			OnStop: func(ctx context.Context) error {
				return g.Disconnect(ctx)
			},
		})
	}),
)
