package creator

import (
	"go.uber.org/fx"
)

var Module = fx.Module("creator.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

// WorkerModule provides the service with task handlers instead of HTTP routes.
var WorkerModule = fx.Module("creator.worker",
	fx.Provide(NewService),
	fx.Invoke(registerTaskHandlers),
)
