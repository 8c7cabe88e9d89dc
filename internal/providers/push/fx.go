package push

import (
	"strings"

	"github.com/smallbiznis/matchpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.push",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	endpoint := strings.TrimSpace(cfg.Push.Endpoint)
	if endpoint == "" {
		if log != nil {
			log.Info("push endpoint not configured, notifications disabled")
		}
		return &NoOpProvider{}
	}
	return NewHTTP(Config{
		Endpoint: endpoint,
		APIKey:   cfg.Push.APIKey,
		Timeout:  cfg.Push.Timeout,
	})
}
