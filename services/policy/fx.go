package policy

import "go.uber.org/fx"

var Module = fx.Module("policy.module",
	fx.Provide(NewService),
)
