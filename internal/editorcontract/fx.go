package editorcontract

import (
	"github.com/kongfuworld/settlement/internal/editorcontract/domain"
	"github.com/kongfuworld/settlement/internal/editorcontract/service"
	"github.com/kongfuworld/settlement/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("editorcontract.service",
	fx.Provide(repository.ProvideStore[domain.EditorContract]),
	fx.Provide(service.NewService),
)
