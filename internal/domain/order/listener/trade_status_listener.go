package listener

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"orders_manager/internal/domain/order/model"
	"orders_manager/pkg/logger"
	"orders_manager/pkg/metrics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const notificationSource = "kafka"

// MessageReader kafka.Reader 的消费子集
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Payer 支付成功处理
type Payer interface {
	PaySuccess(ctx context.Context, msg model.TradeStatusMsg) error
}

// TradeStatusListener 消费支付服务推送的交易状态
type TradeStatusListener struct {
	reader       MessageReader
	payer        Payer
	productAppID string
	metrics      *metrics.MetricsCollector
	wg           sync.WaitGroup
	stopped      atomic.Bool
}

// NewKafkaReader 按配置创建消费组 reader
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // 同步提交
	})
}

func NewTradeStatusListener(reader MessageReader, payer Payer, productAppID string, collector *metrics.MetricsCollector) *TradeStatusListener {
	return &TradeStatusListener{
		reader:       reader,
		payer:        payer,
		productAppID: productAppID,
		metrics:      collector,
	}
}

// Start 启动消费循环，ctx 取消或 Stop 后退出
func (l *TradeStatusListener) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		logger.Log.Info("trade status listener started")
		for {
			if l.stopped.Load() {
				return
			}
			msg, err := l.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) || l.stopped.Load() {
					logger.Log.Info("trade status listener shutting down")
					return
				}
				logger.Log.Error("fetch trade status message failed", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			l.Handle(ctx, msg.Value)

			if err := l.reader.CommitMessages(ctx, msg); err != nil {
				logger.Log.Error("commit trade status message failed", zap.Int64("offset", msg.Offset), zap.Error(err))
			}
		}
	}()
}

// Stop 关闭 reader 并等待消费循环退出
func (l *TradeStatusListener) Stop() {
	l.stopped.Store(true)
	if err := l.reader.Close(); err != nil {
		logger.Log.Warn("close kafka reader failed", zap.Error(err))
	}
	l.wg.Wait()
	logger.Log.Info("trade status listener stopped")
}

// Handle 处理一条消息，消息体为交易状态数组，单条失败不影响其余记录
func (l *TradeStatusListener) Handle(ctx context.Context, value []byte) {
	var msgs []model.TradeStatusMsg
	if err := json.Unmarshal(value, &msgs); err != nil {
		logger.Log.Error("malformed trade status message skipped", zap.ByteString("body", value), zap.Error(err))
		l.metrics.RecordTradeNotification(notificationSource, "malformed")
		return
	}

	for _, msg := range FilterPaid(msgs, l.productAppID) {
		if err := l.payer.PaySuccess(ctx, msg); err != nil {
			logger.Log.Error("apply pay notification failed",
				zap.Int64("order_id", msg.ProductOrderNo), zap.String("trading_order_no", msg.TradingOrderNo), zap.Error(err))
			l.metrics.RecordTradeNotification(notificationSource, "error")
			continue
		}
		l.metrics.RecordTradeNotification(notificationSource, "ok")
	}
}

// FilterPaid 只保留本业务系统已支付的记录
func FilterPaid(msgs []model.TradeStatusMsg, productAppID string) []model.TradeStatusMsg {
	out := make([]model.TradeStatusMsg, 0, len(msgs))
	for _, msg := range msgs {
		if msg.StatusCode == model.TradeStatusPaid && msg.ProductAppID == productAppID {
			out = append(out, msg)
		}
	}
	return out
}
