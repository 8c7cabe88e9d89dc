package entitlement

import (
	"github.com/smallbiznis/matchpay/internal/entitlement/repository"
	"github.com/smallbiznis/matchpay/internal/entitlement/service"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(fx.Annotate(
		func(s *service.Service) domain.SideEffect { return s },
		fx.ResultTags(`group:"payment_side_effects"`),
	)),
)
