package providers

import (
	"github.com/smallbiznis/matchpay/internal/providers/push"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	push.Module,
)
