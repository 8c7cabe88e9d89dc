package payment

import (
	"github.com/smallbiznis/matchpay/internal/payment/confirmation"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"github.com/smallbiznis/matchpay/internal/payment/idempotency"
	"github.com/smallbiznis/matchpay/internal/payment/provider"
	"github.com/smallbiznis/matchpay/internal/payment/signature"
	"github.com/smallbiznis/matchpay/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(signature.NewVerifier),
	fx.Provide(func(v *signature.Verifier) webhook.Verifier { return v }),
	fx.Provide(provider.NewClient),
	fx.Provide(func(c *provider.Client) domain.StatusFetcher { return c }),
	fx.Provide(idempotency.NewStore),
	fx.Provide(webhook.NewPaymentHandler),
	fx.Provide(func(h *webhook.PaymentHandler, log *zap.Logger) *webhook.Registry {
		return webhook.NewDefaultRegistry(h, log)
	}),
	fx.Provide(webhook.NewService),
	fx.Provide(confirmation.NewService),
)
