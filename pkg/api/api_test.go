package api

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/keeper-registry/pkg/config"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) GetState() (types.State, config.Config) {
	ret := m.Called()

	return ret.Get(0).(types.State), ret.Get(1).(config.Config)
}

func (m *mockRegistry) GetUpkeep(id types.UpkeepID) types.Upkeep {
	return m.Called(id).Get(0).(types.Upkeep)
}

func (m *mockRegistry) GetKeeperInfo(keeper common.Address) types.KeeperInfo {
	return m.Called(keeper).Get(0).(types.KeeperInfo)
}

func (m *mockRegistry) GetActiveUpkeepIDs(offset, count int) []types.UpkeepID {
	return m.Called(offset, count).Get(0).([]types.UpkeepID)
}

func (m *mockRegistry) GetMinBalanceForUpkeep(ctx context.Context, id types.UpkeepID) (*big.Int, error) {
	ret := m.Called(ctx, id)

	return ret.Get(0).(*big.Int), ret.Error(1)
}

func (m *mockRegistry) GetMaxPaymentForGas(ctx context.Context, gasLimit uint64) (*big.Int, error) {
	ret := m.Called(ctx, gasLimit)

	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}

	return ret.Get(0).(*big.Int), ret.Error(1)
}

func serve(t *testing.T, reg Registry, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	router := NewController(reg, nil).NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}

	return rec, body
}

func TestHandleUpkeep(t *testing.T) {
	reg := new(mockRegistry)
	reg.On("GetUpkeep", types.UpkeepID(7)).Return(types.Upkeep{
		ID:                  7,
		Admin:               common.HexToAddress("0xad"),
		CheckData:           []byte{0xbe, 0xef},
		Balance:             big.NewInt(1_500_000_000_000_000_000),
		AmountSpent:         big.NewInt(25),
		MaxValidBlocknumber: types.UnlimitedBlock,
	})

	rec, body := serve(t, reg, "/api/upkeeps/7")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "7", body["id"])
	assert.Equal(t, "0xbeef", body["checkData"])
	assert.Equal(t, false, body["cancelled"])
	assert.Equal(t, map[string]interface{}{"juels": "1500000000000000000", "link": "1.5"}, body["balance"])
	assert.Equal(t, "0x00000000000000000000000000000000000000ad", body["admin"])

	rec, _ = serve(t, reg, "/api/upkeeps/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	reg.AssertExpectations(t)
}

func TestHandleUpkeep_Unknown(t *testing.T) {
	reg := new(mockRegistry)
	reg.On("GetUpkeep", types.UpkeepID(99)).Return(types.Upkeep{}.Clone())

	rec, body := serve(t, reg, "/api/upkeeps/99")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "0", body["id"])
	assert.Equal(t, false, body["cancelled"])
	assert.Equal(t, map[string]interface{}{"juels": "0", "link": "0"}, body["balance"])
}

func TestHandleActiveUpkeeps(t *testing.T) {
	reg := new(mockRegistry)
	reg.On("GetActiveUpkeepIDs", 2, 3).Return([]types.UpkeepID{3, 4, 6})

	rec, body := serve(t, reg, "/api/upkeeps?offset=2&count=3")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []interface{}{"3", "4", "6"}, body["ids"])
	assert.Equal(t, float64(3), body["count"])

	rec, _ = serve(t, reg, "/api/upkeeps?offset=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	reg.AssertExpectations(t)
}

func TestHandleKeeper(t *testing.T) {
	keeper := common.HexToAddress("0x1001")

	reg := new(mockRegistry)
	reg.On("GetKeeperInfo", keeper).Return(types.KeeperInfo{
		Payee:   common.HexToAddress("0x2001"),
		Balance: big.NewInt(10),
		Active:  true,
	})

	rec, body := serve(t, reg, "/api/keepers/"+keeper.Hex())
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, true, body["active"])
	assert.Equal(t, map[string]interface{}{"juels": "10", "link": "0.00000000000000001"}, body["balance"])

	rec, _ = serve(t, reg, "/api/keepers/not-an-address")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleState(t *testing.T) {
	reg := new(mockRegistry)
	reg.On("GetState").Return(types.State{
		Owner:               common.HexToAddress("0x0f"),
		Nonce:               4,
		NumUpkeeps:          3,
		ExpectedLinkBalance: big.NewInt(100),
		OwnerLinkBalance:    big.NewInt(0),
		BlockNumber:         1234,
	}, config.Default())

	rec, body := serve(t, reg, "/api/state")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, float64(4), body["nonce"])
	assert.Equal(t, []interface{}{}, body["keepers"])

	conf, ok := body["config"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(config.DefaultPaymentPremiumPPB), conf["paymentPremiumPPB"])
}

func TestHandleMaxPayment(t *testing.T) {
	reg := new(mockRegistry)
	reg.On("GetMaxPaymentForGas", mock.Anything, uint64(100_000)).Return(big.NewInt(45_000_000_000_000_000), nil)
	reg.On("GetMaxPaymentForGas", mock.Anything, uint64(1)).Return(nil, types.ErrPaymentGreaterThanAllLINK)

	rec, body := serve(t, reg, "/api/max-payment/100000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0.045", body["link"])

	rec, body = serve(t, reg, "/api/max-payment/1")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "PaymentGreaterThanAllLINK", body["error"])

	rec, _ = serve(t, reg, "/api/max-payment/lots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMinBalance(t *testing.T) {
	reg := new(mockRegistry)
	reg.On("GetMinBalanceForUpkeep", mock.Anything, types.UpkeepID(2)).Return(big.NewInt(77), nil)

	rec, body := serve(t, reg, "/api/upkeeps/2/min-balance")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "77", body["juels"])
}

func TestMetricsRoute(t *testing.T) {
	rec, _ := serve(t, new(mockRegistry), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
