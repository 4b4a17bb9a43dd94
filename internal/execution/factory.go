package execution

import (
	"context"
	"fmt"
	"os"

	"epicenter/internal/domain"
	"epicenter/internal/infra"
	"epicenter/internal/infra/binance"
	"epicenter/pkg/quant"
)

// Router is the execution surface the decision loop drives.
type Router interface {
	Route(ctx context.Context, order domain.Order) (*domain.OrderResult, error)
	Balance(asset string) quant.QtySats
	Snapshot() map[string]quant.QtySats
	Close()
}

// confirmEnv must hold confirmValue before live mode will start. Paper is
// the default everywhere else; this latch is the last stop before real
// orders leave the process.
const (
	confirmEnv   = "CONFIRM_LIVE_TRADING"
	confirmValue = "YES"
)

// NewRouter builds the router for the configured mode.
func NewRouter(cfg *infra.Config, prices PriceSource) (Router, error) {
	switch cfg.Trading.Mode {
	case "paper":
		return NewPaperRouter(cfg, prices), nil
	case "live":
		if os.Getenv(confirmEnv) != confirmValue {
			return nil, domain.NewTradeError(domain.ErrConfig, "execution.factory",
				fmt.Errorf("live mode requires %s=%s", confirmEnv, confirmValue))
		}
		return NewLiveRouter(cfg, binance.NewClient(cfg)), nil
	default:
		return nil, domain.NewTradeError(domain.ErrConfig, "execution.factory",
			fmt.Errorf("unknown trading mode %q", cfg.Trading.Mode))
	}
}
