package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"orders_manager/internal/domain/order/model"
	"orders_manager/internal/domain/order/service"
	"orders_manager/internal/domain/order/strategy"
	"orders_manager/internal/pkg/middleware"
	"orders_manager/pkg/logger"
	"orders_manager/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NotifyParser 验签并解析渠道回调
type NotifyParser interface {
	Notify(ctx context.Context, channel string, params interface{}) (*strategy.TradeResult, error)
}

type OrderHandler struct {
	creator service.CreateService
	manager service.ManagerService
	parser  NotifyParser
}

func NewOrderHandler(creator service.CreateService, manager service.ManagerService, parser NotifyParser) *OrderHandler {
	return &OrderHandler{creator: creator, manager: manager, parser: parser}
}

type PlaceOrderInput struct {
	ServeID        int64           `json:"serveId" binding:"required"`
	ServeItemName  string          `json:"serveItemName" binding:"required"`
	Price          decimal.Decimal `json:"price"`
	PurNum         int             `json:"purNum" binding:"gte=0"`
	ServeStartTime time.Time       `json:"serveStartTime" binding:"required"`
}

type CancelOrderInput struct {
	CancelReason string `json:"cancelReason" binding:"max=200"`
}

type PayInput struct {
	TradingChannel string `json:"tradingChannel" binding:"required,oneof=ALI_PAY WECHAT_PAY"`
}

// PlaceOrder 下单
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var input PlaceOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	userID, _, _ := middleware.CurrentUser(c)
	snap, err := h.creator.PlaceOrder(c.Request.Context(), service.PlaceOrderInput{
		UserID:         userID,
		ServeID:        input.ServeID,
		ServeItemName:  input.ServeItemName,
		Price:          input.Price,
		PurNum:         input.PurNum,
		ServeStartTime: input.ServeStartTime,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": strconv.FormatInt(snap.ID, 10)})
}

// GetDetail 订单详情
func (h *OrderHandler) GetDetail(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	snap, err := h.manager.GetDetail(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	userID, _, userType := middleware.CurrentUser(c)
	if userType != model.UserTypeOperation && snap.UserID != userID {
		handleError(c, model.ErrNotFound)
		return
	}
	response.Success(c, snap)
}

// Cancel 取消订单
func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var input CancelOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	userID, userName, userType := middleware.CurrentUser(c)
	if userType == "" {
		userType = model.UserTypeUser
	}
	err := h.manager.Cancel(c.Request.Context(), service.CancelInput{
		OrderID:         id,
		Reason:          input.CancelReason,
		CurrentUserID:   userID,
		CurrentUserName: userName,
		CurrentUserType: userType,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}

// Pay 发起支付，返回二维码
func (h *OrderHandler) Pay(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var input PayInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	userID, _, _ := middleware.CurrentUser(c)
	result, err := h.creator.Pay(c.Request.Context(), id, userID, input.TradingChannel)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// GetPayResult 查询支付结果
func (h *OrderHandler) GetPayResult(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	result, err := h.creator.GetPayResult(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// AlipayNotify 支付宝回调，返回 success 后支付宝停止重试
func (h *OrderHandler) AlipayNotify(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusOK, "fail")
		return
	}
	if err := h.applyNotify(c.Request.Context(), model.ChannelAlipay, c.Request.Form); err != nil {
		c.String(http.StatusOK, "fail")
		return
	}
	c.String(http.StatusOK, "success")
}

// WechatNotify 微信支付回调，非 2xx 时微信会重试
func (h *OrderHandler) WechatNotify(c *gin.Context) {
	if err := h.applyNotify(c.Request.Context(), model.ChannelWechat, c.Request); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "FAIL", "message": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *OrderHandler) applyNotify(ctx context.Context, channel string, params interface{}) error {
	trade, err := h.parser.Notify(ctx, channel, params)
	if err != nil {
		logger.Log.Warn("payment notification rejected", zap.String("channel", channel), zap.Error(err))
		return err
	}
	if trade.State != strategy.TradeStatePaid {
		return nil
	}

	id, err := strategy.OrderIDFromTradingOrderNo(trade.TradingOrderNo)
	if err != nil {
		return err
	}
	err = h.creator.PaySuccess(ctx, model.TradeStatusMsg{
		ProductOrderNo: id,
		StatusCode:     model.TradeStatusPaid,
		TradingOrderNo: trade.TradingOrderNo,
		TradingChannel: channel,
		TransactionID:  trade.TransactionID,
		PayTime:        trade.PayTime,
	})
	// 订单已不可支付时渠道重试也无济于事
	if errors.Is(err, model.ErrInvalidTransition) {
		return nil
	}
	return err
}

func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "invalid order id")
		return 0, false
	}
	return id, true
}

// handleError 业务错误映射为业务码
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		response.Error(c, http.StatusNotFound, response.ErrOrderNotFound, "order not found")
	case errors.Is(err, model.ErrStaleState):
		response.Fail(c, response.ErrOrderStateChanged, "order state already changed")
	case errors.Is(err, model.ErrUnsupportedTransition):
		response.Fail(c, response.ErrOrderNotCancelable, "current status does not support cancellation")
	case errors.Is(err, model.ErrInvalidTransition):
		response.Fail(c, response.ErrOrderInvalidStatus, err.Error())
	case errors.Is(err, model.ErrAlreadyExists):
		response.Fail(c, response.ErrOrderAlreadyExists, err.Error())
	case errors.Is(err, model.ErrValidation):
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
	case errors.Is(err, model.ErrExternalService):
		logger.Log.Error("payment gateway error", zap.String("path", c.FullPath()), zap.Error(err))
		response.Error(c, http.StatusBadGateway, response.ErrPaymentGateway, "payment service unavailable")
	default:
		logger.Log.Error("order request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "internal server error")
	}
}
