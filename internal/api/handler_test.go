package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradepost/internal/economy"
	"tradepost/internal/models"
	"tradepost/internal/service"
	"tradepost/internal/world"
	"tradepost/internal/worldtest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, dev bool) (*gin.Engine, *service.EconomyService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := worldtest.Registry(t)
	engine := economy.New(reg, world.NewMemoryStore(reg, nil), economy.Options{CooldownCap: 4, Seed: 1}, nil)
	svc := service.NewEconomyService(engine, nil, nil, nil, nil, service.Options{})
	require.NoError(t, svc.LoadStore(context.Background(), "general-1", "general", world.Coordinates{}))

	router := gin.New()
	NewHandler(svc, nil, "", dev).SetupRoutes(router)
	return router, svc
}

func do(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthAndReady(t *testing.T) {
	router, _ := newRouter(t, false)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/ready", nil).Code)
}

func TestBuyFlowThroughDevEndpoints(t *testing.T) {
	router, _ := newRouter(t, true)

	w := do(router, http.MethodPost, "/api/v1/dev/holders", gin.H{"kind": "Player"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var spawned struct {
		Holder uint64 `json:"holder"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spawned))

	w = do(router, http.MethodPost, "/api/v1/dev/holders/"+itoa(spawned.Holder)+"/grant", gin.H{"proto": "Credit", "count": 45})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(router, http.MethodPost, "/api/v1/stores/general-1/buy", gin.H{"listing_id": "buy-widget", "holder": spawned.Holder, "count": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.TradeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 4, resp.Count)
	assert.Equal(t, int64(40), resp.Amount)

	w = do(router, http.MethodGet, "/api/v1/dev/holders/"+itoa(spawned.Holder)+"/balances/Credits", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"currency":"Credits","balance":5}`, w.Body.String())

	w = do(router, http.MethodPost, "/api/v1/stores/general-1/buy", gin.H{"listing_id": "buy-widget", "holder": spawned.Holder, "count": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.TradeInsufficientFunds, resp.Failure)
}

func TestListingsAndContracts(t *testing.T) {
	router, _ := newRouter(t, false)

	w := do(router, http.MethodGet, "/api/v1/stores/general-1/listings?mode=sell", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Listings []models.Listing `json:"listings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Listings, 3)
	assert.Equal(t, "sell-gold", body.Listings[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/stores/general-1/listings?mode=lend", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/v1/stores/nope/listings", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/stores/general-1/contracts", nil).Code)
}

func TestRejections(t *testing.T) {
	router, _ := newRouter(t, false)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/v1/stores/general-1/buy", gin.H{"listing_id": "buy-widget"}).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPost, "/api/v1/stores/nope/buy", gin.H{"listing_id": "buy-widget", "holder": 1, "count": 1}).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPost, "/api/v1/stores/general-1/contracts/missing/claim", gin.H{"holder": 1}).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPost, "/api/v1/stores/nope/refresh", gin.H{"holder": 1, "session": "s"}).Code)
	// dev endpoints are off
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPost, "/api/v1/dev/holders", gin.H{"kind": "Player"}).Code)
}

func itoa(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
