package editorincome

import (
	"github.com/kongfuworld/settlement/internal/editorincome/repository"
	"github.com/kongfuworld/settlement/internal/editorincome/service"
	"go.uber.org/fx"
)

var Module = fx.Module("editorincome.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
