package billing

import (
	"github.com/smallbiznis/slotmeter/internal/billing/repository"
	"github.com/smallbiznis/slotmeter/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
