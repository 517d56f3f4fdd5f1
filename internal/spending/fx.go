package spending

import (
	"github.com/kongfuworld/settlement/internal/spending/repository"
	"github.com/kongfuworld/settlement/internal/spending/service"
	"go.uber.org/fx"
)

var Module = fx.Module("spending.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
