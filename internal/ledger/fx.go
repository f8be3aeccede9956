package ledger

import (
	"github.com/smallbiznis/bookkeeping/internal/ledger/lock"
	"github.com/smallbiznis/bookkeeping/internal/ledger/posting"
	"github.com/smallbiznis/bookkeeping/internal/ledger/repository"
	"github.com/smallbiznis/bookkeeping/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	lock.Module,
	fx.Provide(repository.Provide),
	fx.Provide(posting.New),
	fx.Provide(service.New),
)
