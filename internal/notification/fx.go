package notification

import (
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(NewService),
	fx.Provide(fx.Annotate(
		func(s *Service) domain.SideEffect { return s },
		fx.ResultTags(`group:"payment_side_effects"`),
	)),
)
