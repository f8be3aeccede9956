package lock

import "go.uber.org/fx"

var Module = fx.Module("ledger.lock",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
)
