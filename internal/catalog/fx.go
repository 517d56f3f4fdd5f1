package catalog

import (
	"github.com/kongfuworld/settlement/internal/catalog/domain"
	"github.com/kongfuworld/settlement/internal/catalog/service"
	"github.com/kongfuworld/settlement/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(
		repository.ProvideStore[domain.Novel],
		repository.ProvideStore[domain.ChapterAssignment],
		repository.ProvideStore[domain.ChapterWorkload],
		repository.ProvideStore[domain.NovelChapterTotal],
	),
	fx.Provide(service.NewService),
)
