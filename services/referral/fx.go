package referral

import (
	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

var WorkerModule = fx.Module("referral.worker",
	fx.Provide(NewService),
)
