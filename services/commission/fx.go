package commission

import (
	"go.uber.org/fx"
)

var Module = fx.Module("commission.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

var WorkerModule = fx.Module("commission.worker",
	fx.Provide(NewService),
	fx.Invoke(registerTaskHandlers),
)
