package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Parthik04-cyber/shopbackend/internal/auth"
	"github.com/Parthik04-cyber/shopbackend/internal/lifecycle"
	"github.com/Parthik04-cyber/shopbackend/internal/orders"
	"github.com/Parthik04-cyber/shopbackend/internal/validation"
)

// OrderService is the lifecycle surface the routes need; *lifecycle.Service implements it.
type OrderService interface {
	PlaceDirect(ctx context.Context, req validation.DirectOrderRequest, idempotencyKey string) (lifecycle.Placement, error)
	PlaceWithOTP(ctx context.Context, req validation.OTPOrderRequest) (lifecycle.Placement, error)
	ResendOTP(ctx context.Context, orderID string) error
	VerifyOTP(ctx context.Context, orderID, code string) (orders.Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) error
	ListAll(ctx context.Context) ([]orders.Order, error)
	ListForCustomer(ctx context.Context, customerID string) ([]orders.Order, error)
}

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Service OrderService
	Auth    *auth.Verifier
	Logger  *zap.Logger
}

// directBody is the client payload of the direct placement routes. The
// customer comes from the token.
type directBody struct {
	Items   []map[string]interface{} `json:"items"`
	Amount  float64                  `json:"amount"`
	Address *validation.Address      `json:"address"`
}

type resendBody struct {
	OrderID string `json:"orderId"`
}

type ordersHandler struct {
	svc    OrderService
	logger *zap.Logger
}

// RegisterOrdersRoutes registers the order routes under /api/order.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &ordersHandler{svc: cfg.Service, logger: cfg.Logger}

	g := r.Group("/api/order")

	g.POST("/place", cfg.Auth.User(), h.placeDirect(orders.PaymentCOD))
	g.POST("/stripe", cfg.Auth.User(), h.placeDirect(orders.PaymentStripe))
	g.POST("/razorpay", cfg.Auth.User(), h.placeDirect(orders.PaymentRazorpay))

	g.POST("/place-otp", h.placeWithOTP)
	g.POST("/resend-otp", h.resendOTP)
	g.POST("/verify-otp", h.verifyOTP)

	g.POST("/userorders", cfg.Auth.User(), h.userOrders)
	g.GET("/list", cfg.Auth.Admin(), h.listAll)
	g.POST("/status", cfg.Auth.Admin(), h.updateStatus)
}

func (h *ordersHandler) placeDirect(method orders.PaymentMethod) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body directBody
		if err := validation.BindJSON(c, &body); err != nil {
			return
		}
		customerID, _ := auth.CustomerID(c)

		req := validation.DirectOrderRequest{
			CustomerIdentity: customerID,
			Items:            body.Items,
			Amount:           body.Amount,
			Address:          body.Address,
			PaymentMethod:    string(method),
		}
		p, err := h.svc.PlaceDirect(c.Request.Context(), req, c.GetHeader("Idempotency-Key"))
		if err != nil {
			h.fail(c, err, p.OrderID)
			return
		}
		if p.Replayed {
			c.Header("Idempotent-Replayed", "true")
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order Placed", "orderId": p.OrderID})
	}
}

func (h *ordersHandler) placeWithOTP(c *gin.Context) {
	var req validation.OTPOrderRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return
	}
	p, err := h.svc.PlaceWithOTP(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, p.OrderID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orderId": p.OrderID, "message": "OTP sent to email"})
}

func (h *ordersHandler) resendOTP(c *gin.Context) {
	var body resendBody
	if err := validation.BindJSON(c, &body); err != nil {
		return
	}
	if err := h.svc.ResendOTP(c.Request.Context(), body.OrderID); err != nil {
		h.fail(c, err, body.OrderID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orderId": body.OrderID, "message": "OTP sent to email"})
}

func (h *ordersHandler) verifyOTP(c *gin.Context) {
	var req validation.VerifyOTPRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return
	}
	if _, err := h.svc.VerifyOTP(c.Request.Context(), req.OrderID, req.OTP); err != nil {
		h.fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order confirmed"})
}

func (h *ordersHandler) userOrders(c *gin.Context) {
	customerID, _ := auth.CustomerID(c)
	list, err := h.svc.ListForCustomer(c.Request.Context(), customerID)
	if err != nil {
		h.fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": nonNil(list)})
}

func (h *ordersHandler) listAll(c *gin.Context) {
	list, err := h.svc.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": nonNil(list)})
}

func (h *ordersHandler) updateStatus(c *gin.Context) {
	var req validation.StatusUpdateRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return
	}
	if err := h.svc.UpdateStatus(c.Request.Context(), req.OrderID, req.Status); err != nil {
		h.fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Status Updated"})
}

// fail maps lifecycle errors to a status and a {success:false} body.
func (h *ordersHandler) fail(c *gin.Context, err error, orderID string) {
	status, message := http.StatusInternalServerError, "Something went wrong. Please try again."

	var ve *lifecycle.ValidationError
	switch {
	case errors.As(err, &ve):
		status, message = http.StatusBadRequest, ve.Message
	case errors.Is(err, lifecycle.ErrInvalidOrExpired):
		status, message = http.StatusBadRequest, "Invalid or expired OTP"
	case errors.Is(err, lifecycle.ErrNotFound):
		status, message = http.StatusNotFound, "Order not found"
	case errors.Is(err, lifecycle.ErrNotPending):
		status, message = http.StatusConflict, "Order is not awaiting OTP verification"
	case errors.Is(err, lifecycle.ErrRequestInProgress):
		status, message = http.StatusConflict, "Request already in progress"
	default:
		_ = c.Error(err)
		h.logger.Error("order request failed",
			zap.String("route", c.FullPath()),
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	body := gin.H{"success": false, "message": message}
	if orderID != "" && status != http.StatusNotFound {
		body["orderId"] = orderID
	}
	c.JSON(status, body)
}

func nonNil(list []orders.Order) []orders.Order {
	if list == nil {
		return []orders.Order{}
	}
	return list
}
