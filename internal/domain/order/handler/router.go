package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes 注册需要鉴权的订单接口，g 为 /orders 分组
func RegisterRoutes(g *gin.RouterGroup, h *OrderHandler) {
	g.POST("/place", h.PlaceOrder)
	g.GET("/:id", h.GetDetail)
	g.PUT("/:id/cancel", h.Cancel)
	g.POST("/:id/pay", h.Pay)
	g.GET("/:id/pay/result", h.GetPayResult)
}

// RegisterNotifyRoutes 注册渠道回调，无需鉴权，由渠道 SDK 验签
func RegisterNotifyRoutes(g *gin.RouterGroup, h *OrderHandler) {
	g.POST("/notify/alipay", h.AlipayNotify)
	g.POST("/notify/wechat", h.WechatNotify)
}
