package payment

import (
	"github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/kongfuworld/settlement/internal/payment/repository"
	"github.com/kongfuworld/settlement/internal/payment/service"
	pkgrepository "github.com/kongfuworld/settlement/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(pkgrepository.ProvideStore[domain.KarmaRate]),
	fx.Provide(service.NewService),
)
