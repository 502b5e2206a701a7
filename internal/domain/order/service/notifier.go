package service

import (
	"fmt"
	"strconv"

	"orders_manager/internal/pkg/push"
	"orders_manager/pkg/logger"

	"go.uber.org/zap"
)

// notifier 订单事件的用户推送，失败只记日志
type notifier struct {
	push push.PushService
}

func newNotifier(p push.PushService) notifier {
	if p == nil {
		p = push.NoopPushService{}
	}
	return notifier{push: p}
}

func (n notifier) send(userID, orderID int64, title, body string) {
	accountID := strconv.FormatInt(userID, 10)
	ext := map[string]string{"orderId": strconv.FormatInt(orderID, 10)}
	go func() {
		if err := n.push.PushToAccount(accountID, title, body, ext); err != nil {
			logger.Log.Warn("push notification failed", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}()
}

func (n notifier) orderCanceled(userID, orderID int64, reason string) {
	n.send(userID, orderID, "订单已取消", fmt.Sprintf("您的订单 %d 已取消：%s", orderID, reason))
}

func (n notifier) refundFinished(userID, orderID int64, success bool) {
	if success {
		n.send(userID, orderID, "退款成功", fmt.Sprintf("您的订单 %d 已退款，款项将原路返回。", orderID))
		return
	}
	n.send(userID, orderID, "退款失败", fmt.Sprintf("您的订单 %d 退款失败，客服将尽快与您联系。", orderID))
}
