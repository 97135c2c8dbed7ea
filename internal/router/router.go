package router

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"restaurant_orders/internal/config"
	"restaurant_orders/internal/middleware"
	"restaurant_orders/internal/payment"
	"restaurant_orders/internal/service"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// Setup 注册全部 HTTP 路由。rdb 为 nil 时不启用下单限流。
func Setup(r *gin.Engine, orders *service.OrderService, payments *service.PaymentService, rdb *rd.Client, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	api := r.Group("/api")
	// Orders
	create := api.Group("/orders")
	if rdb != nil {
		create.Use(middleware.OrderRateLimit(rdb, cfg.OrderRateLimit, cfg.OrderRateWindow))
	}
	create.POST("", createOrder(orders))
	create.POST("/cash", createCashOrder(orders))
	api.GET("/orders/:id", getOrder(orders))
	// Checkout
	api.POST("/checkout/session", createCheckoutSession(payments))
	api.POST("/checkout/intent", createPaymentIntent(payments))
	// Payment callbacks
	api.GET("/payment/success", paymentSuccess(payments))
	api.GET("/payment/cancel", paymentCancel(payments))
	api.POST("/payment/cancel", paymentCancel(payments))
}

// createOrder 在线支付下单，返回订单 id 与订单号。
func createOrder(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.CreateOrderInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		created, err := orders.CreateOrder(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": created})
	}
}

// createCashOrder 现金下单，同步返回完整订单。
func createCashOrder(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.CreateOrderInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		view, err := orders.CreateCashOrder(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": view})
	}
}

func getOrder(orders *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "订单ID无效"})
			return
		}
		view, err := orders.GetOrder(c.Request.Context(), uint(id))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": view})
	}
}

// createCheckoutSession 创建托管支付页；Idempotency-Key 头用于安全重试。
func createCheckoutSession(payments *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.CheckoutInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
		sess, err := payments.CreateCheckoutSession(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": sess})
	}
}

func createPaymentIntent(payments *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OrderID uint `json:"orderId" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		in, err := payments.CreatePaymentIntent(c.Request.Context(), req.OrderID, c.GetHeader("Idempotency-Key"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": in})
	}
}

// paymentSuccess 支付服务重定向回来的成功回调。
func paymentSuccess(payments *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := payments.HandleSuccess(c.Request.Context(), c.Query("session_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": view})
	}
}

// paymentCancel 取消回调，session id 可在 query 或 JSON body 中。
func paymentCancel(payments *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := payments.HandleCancel(c.Request.Context(), cancelSessionID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": view})
	}
}

func cancelSessionID(c *gin.Context) string {
	if id := strings.TrimSpace(c.Query("session_id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.Query("sessionId")); id != "" {
		return id
	}
	if c.Request.Method != http.MethodPost || c.Request.ContentLength == 0 {
		return ""
	}
	var body struct {
		SessionID string `json:"sessionId"`
	}
	// body 解析失败按缺少 session id 处理
	_ = c.ShouldBindJSON(&body)
	return strings.TrimSpace(body.SessionID)
}

// writeError 统一把业务错误映射为 HTTP 状态码。
func writeError(c *gin.Context, err error) {
	var ve *service.ValidationError
	var ge *payment.GatewayError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "参数校验失败", "errors": ve.Problems})
	case errors.Is(err, service.ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": err.Error()})
	case errors.As(err, &ge):
		c.JSON(http.StatusBadGateway, gin.H{"code": 502, "msg": "支付服务暂不可用"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
	}
}
