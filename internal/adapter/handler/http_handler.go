package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rl1809/pizzahub/internal/core/domain"
	"github.com/rl1809/pizzahub/internal/core/service"
)

type HTTPHandler struct {
	orders      *service.OrderService
	ingredients *service.IngredientService
	logger      *slog.Logger
}

type IngredientRefRequest struct {
	ID       string `json:"id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1,max=20"`
	Portion  string `json:"portion" binding:"omitempty,oneof=light regular extra"`
}

type PlaceOrderRequest struct {
	RequestID           string                 `json:"request_id"`
	CustomerRef         string                 `json:"customer_ref" binding:"required"`
	CustomerPhone       string                 `json:"customer_phone"`
	Size                string                 `json:"size" binding:"omitempty,oneof=small medium large"`
	Base                IngredientRefRequest   `json:"base"`
	Sauce               IngredientRefRequest   `json:"sauce"`
	Cheese              IngredientRefRequest   `json:"cheese"`
	Vegetables          []IngredientRefRequest `json:"vegetables" binding:"omitempty,dive"`
	Meats               []IngredientRefRequest `json:"meats" binding:"omitempty,dive"`
	SpecialInstructions string                 `json:"special_instructions" binding:"max=200"`
	Quantity            int                    `json:"quantity" binding:"required,min=1,max=50"`
	ItemPrice           decimal.Decimal        `json:"item_price"`
	DeliveryFee         decimal.Decimal        `json:"delivery_fee"`
	Tax                 decimal.Decimal        `json:"tax"`
	DeliveryAddress     domain.DeliveryAddress `json:"delivery_address"`
	Notes               string                 `json:"notes"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Actor  string `json:"actor"`
	Notes  string `json:"notes"`
}

type CreateIngredientRequest struct {
	Type              string          `json:"type" binding:"required"`
	ID                string          `json:"id" binding:"required"`
	Name              string          `json:"name" binding:"required"`
	Price             decimal.Decimal `json:"price"`
	StockQuantity     int             `json:"stock_quantity" binding:"min=0"`
	LowStockThreshold *int            `json:"low_stock_threshold" binding:"omitempty,min=0"`
	Available         *bool           `json:"available"`
}

type AdjustStockRequest struct {
	Change int `json:"change" binding:"required"`
}

type ErrorResponse struct {
	Error      string `json:"error"`
	Detail     string `json:"detail,omitempty"`
	Ingredient string `json:"ingredient,omitempty"`
}

func NewHTTPHandler(orders *service.OrderService, ingredients *service.IngredientService, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{
		orders:      orders,
		ingredients: ingredients,
		logger:      logger.With("component", "http_handler"),
	}
}

// Router builds the gin engine with every route registered.
func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger))
	h.Register(r)
	return r
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	orders := api.Group("/orders")
	orders.POST("", h.PlaceOrder)
	orders.GET("", h.ListOrders)
	orders.GET("/:id", h.GetOrder)
	orders.PATCH("/:id/status", h.UpdateStatus)

	ingredients := api.Group("/ingredients")
	ingredients.GET("", h.ListIngredients)
	ingredients.POST("", h.CreateIngredient)
	ingredients.GET("/:type/:id", h.GetIngredient)
	ingredients.DELETE("/:type/:id", h.DeleteIngredient)
	ingredients.PATCH("/:type/:id/stock", h.AdjustStock)
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), req.toInput())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	filter := domain.OrderFilter{
		CustomerRef: c.Query("customer"),
		Status:      domain.OrderStatus(c.Query("status")),
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	c.JSON(http.StatusOK, orders)
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *HTTPHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}

	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), status, req.Actor, req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *HTTPHandler) ListIngredients(c *gin.Context) {
	var typ domain.IngredientType
	if raw := c.Query("type"); raw != "" {
		parsed, err := domain.ParseIngredientType(raw)
		if err != nil {
			h.writeError(c, err)
			return
		}
		typ = parsed
	}

	items, err := h.ingredients.ListIngredients(c.Request.Context(), typ)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if items == nil {
		items = []domain.Ingredient{}
	}

	c.JSON(http.StatusOK, items)
}

func (h *HTTPHandler) CreateIngredient(c *gin.Context) {
	var req CreateIngredientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}

	typ, err := domain.ParseIngredientType(req.Type)
	if err != nil {
		h.writeError(c, err)
		return
	}

	ingredient := domain.Ingredient{
		Type:              typ,
		ID:                req.ID,
		Name:              req.Name,
		Price:             req.Price,
		StockQuantity:     req.StockQuantity,
		LowStockThreshold: domain.DefaultLowStockThreshold,
		Available:         true,
	}
	if req.LowStockThreshold != nil {
		ingredient.LowStockThreshold = *req.LowStockThreshold
	}
	if req.Available != nil {
		ingredient.Available = *req.Available
	}

	created, err := h.ingredients.CreateIngredient(c.Request.Context(), ingredient)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *HTTPHandler) GetIngredient(c *gin.Context) {
	key, ok := h.ingredientKey(c)
	if !ok {
		return
	}

	ingredient, err := h.ingredients.GetIngredient(c.Request.Context(), key)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ingredient)
}

func (h *HTTPHandler) DeleteIngredient(c *gin.Context) {
	key, ok := h.ingredientKey(c)
	if !ok {
		return
	}

	if err := h.ingredients.DeleteIngredient(c.Request.Context(), key); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) AdjustStock(c *gin.Context) {
	key, ok := h.ingredientKey(c)
	if !ok {
		return
	}

	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Detail: err.Error()})
		return
	}

	ingredient, err := h.ingredients.AdjustStock(c.Request.Context(), key, req.Change)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ingredient)
}

func (h *HTTPHandler) ingredientKey(c *gin.Context) (domain.IngredientKey, bool) {
	typ, err := domain.ParseIngredientType(c.Param("type"))
	if err != nil {
		h.writeError(c, err)
		return domain.IngredientKey{}, false
	}
	return domain.IngredientKey{Type: typ, ID: c.Param("id")}, true
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	m := classify(err)
	resp := ErrorResponse{Error: m.message, Detail: err.Error()}
	if key, ok := failedIngredient(err); ok {
		resp.Ingredient = key.String()
	}

	if m.status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(m.status, resp)
}

func (r PlaceOrderRequest) toInput() service.PlaceOrderInput {
	cfg := domain.PizzaConfiguration{
		Size:                domain.PizzaSize(r.Size),
		Base:                r.Base.toRef(domain.IngredientBase),
		Sauce:               r.Sauce.toRef(domain.IngredientSauce),
		Cheese:              r.Cheese.toRef(domain.IngredientCheese),
		SpecialInstructions: r.SpecialInstructions,
	}
	for _, v := range r.Vegetables {
		cfg.Vegetables = append(cfg.Vegetables, v.toRef(domain.IngredientVegetable))
	}
	for _, m := range r.Meats {
		cfg.Meats = append(cfg.Meats, m.toRef(domain.IngredientMeat))
	}

	return service.PlaceOrderInput{
		RequestID:     r.RequestID,
		CustomerRef:   r.CustomerRef,
		CustomerPhone: r.CustomerPhone,
		Configuration: cfg,
		Quantity:      r.Quantity,
		Pricing: domain.Pricing{
			ItemPrice:   r.ItemPrice,
			DeliveryFee: r.DeliveryFee,
			Tax:         r.Tax,
		},
		DeliveryAddress: r.DeliveryAddress,
		Notes:           r.Notes,
	}
}

func (r IngredientRefRequest) toRef(typ domain.IngredientType) domain.IngredientRef {
	return domain.IngredientRef{
		Type:     typ,
		ID:       r.ID,
		Quantity: r.Quantity,
		Portion:  domain.Portion(r.Portion),
	}
}
