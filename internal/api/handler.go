package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"tradepost/internal/models"
	"tradepost/internal/service"
	"tradepost/internal/util"
	"tradepost/internal/world"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	economy     *service.EconomyService
	push        http.Handler
	presetsPath string
	dev         bool
}

// NewHandler creates a new HTTP handler. push serves the websocket channel and may be nil.
// dev enables the holder and preset maintenance endpoints.
func NewHandler(economy *service.EconomyService, push http.Handler, presetsPath string, dev bool) *Handler {
	return &Handler{
		economy:     economy,
		push:        push,
		presetsPath: presetsPath,
		dev:         dev,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.push != nil {
		router.GET("/ws", gin.WrapH(h.push))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stores", h.listStores)
		v1.GET("/stores/:store/listings", h.visibleListings)
		v1.GET("/stores/:store/contracts", h.listContracts)
		v1.POST("/stores/:store/buy", h.buy)
		v1.POST("/stores/:store/sell", h.sell)
		v1.POST("/stores/:store/mass-sell", h.massSell)
		v1.POST("/stores/:store/contracts/:contract/claim", h.claim)
		v1.POST("/stores/:store/refresh", h.refresh)
	}

	if h.dev {
		dev := router.Group("/api/v1/dev")
		{
			dev.POST("/holders", h.spawnHolder)
			dev.POST("/holders/:holder/grant", h.grant)
			dev.GET("/holders/:holder/balances/:currency", h.balance)
			dev.POST("/reload", h.reload)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once at least one store is loaded
func (h *Handler) readinessCheck(c *gin.Context) {
	stores := h.economy.StoreIDs()
	if len(stores) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no stores loaded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"stores": len(stores),
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listStores(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stores": h.economy.StoreIDs()})
}

func (h *Handler) visibleListings(c *gin.Context) {
	mode := models.ListingMode(c.Query("mode"))
	if mode != "" && mode != models.ModeBuy && mode != models.ModeSell {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be buy or sell"})
		return
	}

	listings, err := h.economy.VisibleListings(c.Request.Context(), c.Param("store"), mode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

func (h *Handler) listContracts(c *gin.Context) {
	contracts, err := h.economy.Contracts(c.Request.Context(), c.Param("store"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

func (h *Handler) buy(c *gin.Context) {
	var req models.BuyRequest
	if !bind(c, &req) {
		return
	}
	req.StoreID = c.Param("store")
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.economy.Buy(c.Request.Context(), &req)
	writeTrade(c, resp, err)
}

func (h *Handler) sell(c *gin.Context) {
	var req models.SellRequest
	if !bind(c, &req) {
		return
	}
	req.StoreID = c.Param("store")
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.economy.Sell(c.Request.Context(), &req)
	writeTrade(c, resp, err)
}

func (h *Handler) massSell(c *gin.Context) {
	var req models.MassSellRequest
	if !bind(c, &req) {
		return
	}
	req.StoreID = c.Param("store")
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.economy.MassSell(c.Request.Context(), &req)
	writeTrade(c, resp, err)
}

func (h *Handler) claim(c *gin.Context) {
	var req models.ClaimRequest
	if !bind(c, &req) {
		return
	}
	req.StoreID = c.Param("store")
	req.ContractID = c.Param("contract")
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.economy.Claim(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(claimStatus(resp.Failure), resp)
}

func (h *Handler) refresh(c *gin.Context) {
	var req models.RefreshRequest
	if !bind(c, &req) {
		return
	}
	req.StoreID = c.Param("store")

	resp, err := h.economy.Refresh(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type spawnHolderRequest struct {
	Kind string  `json:"kind" binding:"required"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (h *Handler) spawnHolder(c *gin.Context) {
	var req spawnHolderRequest
	if !bind(c, &req) {
		return
	}
	id, err := h.economy.SpawnHolder(c.Request.Context(), req.Kind, world.Coordinates{X: req.X, Y: req.Y})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"holder": id})
}

type grantRequest struct {
	Proto string `json:"proto" binding:"required"`
	Count int    `json:"count" binding:"required,min=1"`
}

func (h *Handler) grant(c *gin.Context) {
	holder, ok := holderParam(c)
	if !ok {
		return
	}
	var req grantRequest
	if !bind(c, &req) {
		return
	}
	granted, err := h.economy.Grant(c.Request.Context(), holder, req.Proto, req.Count)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": granted})
}

func (h *Handler) balance(c *gin.Context) {
	holder, ok := holderParam(c)
	if !ok {
		return
	}
	balance, err := h.economy.Balance(c.Request.Context(), holder, c.Param("currency"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": c.Param("currency"), "balance": balance})
}

func (h *Handler) reload(c *gin.Context) {
	if err := h.economy.Reload(c.Request.Context(), h.presetsPath); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func holderParam(c *gin.Context) (uint64, bool) {
	holder, err := strconv.ParseUint(c.Param("holder"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid holder ID"})
		return 0, false
	}
	return holder, true
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

func writeTrade(c *gin.Context, resp *models.TradeResponse, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(tradeStatus(resp.Failure), resp)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrStoreNotFound), errors.Is(err, service.ErrHolderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDuplicateRequest), errors.Is(err, service.ErrStoreBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Request failed",
			"details": err.Error(),
		})
	}
}

func tradeStatus(f models.TradeFailure) int {
	switch f {
	case "":
		return http.StatusOK
	case models.TradeStoreMissing, models.TradeInvalidListing, models.TradeHolderMissing:
		return http.StatusNotFound
	case models.TradeStoreBusy:
		return http.StatusConflict
	case models.TradeInvalidCount:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func claimStatus(f models.ClaimFailure) int {
	switch f {
	case "":
		return http.StatusOK
	case models.ClaimStoreMissing, models.ClaimContractMissing, models.ClaimMissingCrate:
		return http.StatusNotFound
	case models.ClaimStoreBusy:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
