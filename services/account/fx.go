package account

import "go.uber.org/fx"

var Module = fx.Module("account.module",
	fx.Provide(NewService),
)
