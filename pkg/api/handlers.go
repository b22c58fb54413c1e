package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

func (c *Controller) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.Logger.Printf("failed to write response: %s", err)
	}
}

func (c *Controller) writeError(w http.ResponseWriter, status int, err error) {
	c.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (c *Controller) HandleState(w http.ResponseWriter, _ *http.Request) {
	state, conf := c.Registry.GetState()

	c.writeJSON(w, http.StatusOK, NewStateView(state, conf))
}

func (c *Controller) HandleActiveUpkeeps(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset")
	if err != nil {
		c.writeError(w, http.StatusBadRequest, err)
		return
	}

	count, err := queryInt(r, "count")
	if err != nil {
		c.writeError(w, http.StatusBadRequest, err)
		return
	}

	ids := c.Registry.GetActiveUpkeepIDs(offset, count)

	view := UpkeepIDsView{Offset: offset, Count: len(ids), IDs: make([]string, len(ids))}
	for i, id := range ids {
		view.IDs[i] = id.String()
	}

	c.writeJSON(w, http.StatusOK, view)
}

func (c *Controller) HandleUpkeep(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseUpkeepID(mux.Vars(r)["id"])
	if err != nil {
		c.writeError(w, http.StatusBadRequest, err)
		return
	}

	c.writeJSON(w, http.StatusOK, NewUpkeepView(c.Registry.GetUpkeep(id)))
}

func (c *Controller) HandleMinBalance(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseUpkeepID(mux.Vars(r)["id"])
	if err != nil {
		c.writeError(w, http.StatusBadRequest, err)
		return
	}

	amount, err := c.Registry.GetMinBalanceForUpkeep(r.Context(), id)
	if err != nil {
		c.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	c.writeJSON(w, http.StatusOK, NewAmount(amount))
}

func (c *Controller) HandleKeeper(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		c.writeError(w, http.StatusBadRequest, errors.New("invalid keeper address"))
		return
	}

	address := common.HexToAddress(raw)

	c.writeJSON(w, http.StatusOK, NewKeeperView(address, c.Registry.GetKeeperInfo(address)))
}

func (c *Controller) HandleMaxPayment(w http.ResponseWriter, r *http.Request) {
	gasLimit, err := strconv.ParseUint(mux.Vars(r)["gasLimit"], 10, 64)
	if err != nil {
		c.writeError(w, http.StatusBadRequest, errors.New("invalid gas limit"))
		return
	}

	amount, err := c.Registry.GetMaxPaymentForGas(r.Context(), gasLimit)
	if err != nil {
		c.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	c.writeJSON(w, http.StatusOK, NewAmount(amount))
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + name)
	}

	return v, nil
}
