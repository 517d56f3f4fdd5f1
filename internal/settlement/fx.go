package settlement

import (
	"github.com/kongfuworld/settlement/internal/settlement/repository"
	"github.com/kongfuworld/settlement/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
