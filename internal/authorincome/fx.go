package authorincome

import (
	"github.com/kongfuworld/settlement/internal/authorincome/repository"
	"github.com/kongfuworld/settlement/internal/authorincome/service"
	"go.uber.org/fx"
)

var Module = fx.Module("authorincome.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
