package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/matchpay/internal/analytics"
	"github.com/smallbiznis/matchpay/internal/clock"
	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/entitlement"
	"github.com/smallbiznis/matchpay/internal/migration"
	"github.com/smallbiznis/matchpay/internal/notification"
	"github.com/smallbiznis/matchpay/internal/observability"
	"github.com/smallbiznis/matchpay/internal/payment"
	"github.com/smallbiznis/matchpay/internal/providers"
	"github.com/smallbiznis/matchpay/internal/ratelimit"
	"github.com/smallbiznis/matchpay/internal/server"
	"github.com/smallbiznis/matchpay/pkg/db"
	"github.com/smallbiznis/matchpay/pkg/kv"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		kv.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		providers.Module,

		// Side effects
		analytics.Module,
		entitlement.Module,
		notification.Module,

		payment.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
