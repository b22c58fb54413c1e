package api

import (
	"context"
	"io"
	"log"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartcontractkit/keeper-registry/pkg/config"
	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// Registry is the read-only query surface of an upkeep registry.
type Registry interface {
	GetState() (types.State, config.Config)
	GetUpkeep(types.UpkeepID) types.Upkeep
	GetKeeperInfo(common.Address) types.KeeperInfo
	GetActiveUpkeepIDs(offset, count int) []types.UpkeepID
	GetMinBalanceForUpkeep(context.Context, types.UpkeepID) (*big.Int, error)
	GetMaxPaymentForGas(context.Context, uint64) (*big.Int, error)
}

type Controller struct {
	Registry Registry
	Logger   *log.Logger
}

// NewController returns a controller serving queries against registry.
func NewController(registry Registry, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Controller{
		Registry: registry,
		Logger:   telemetry.WrapLogger(logger, "api"),
	}
}

// NewRouter returns a router with every query route and the metrics
// endpoint.
func (c *Controller) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/state", c.HandleState).Methods(http.MethodGet)
	r.HandleFunc("/api/upkeeps", c.HandleActiveUpkeeps).Methods(http.MethodGet)
	r.HandleFunc("/api/upkeeps/{id}", c.HandleUpkeep).Methods(http.MethodGet)
	r.HandleFunc("/api/upkeeps/{id}/min-balance", c.HandleMinBalance).Methods(http.MethodGet)
	r.HandleFunc("/api/keepers/{address}", c.HandleKeeper).Methods(http.MethodGet)
	r.HandleFunc("/api/max-payment/{gasLimit}", c.HandleMaxPayment).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
