package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"orders_manager/internal/domain/order/model"
	"orders_manager/internal/pkg/config"

	"github.com/shopspring/decimal"
	"github.com/smartwalle/alipay/v3"
)

// 支付宝时间格式，北京时间
const alipayTimeLayout = "2006-01-02 15:04:05"

var alipayLocation = time.FixedZone("CST", 8*3600)

// alipayHTTPTimeout SDK 接口不接收 ctx，由 http.Client 兜底超时
const alipayHTTPTimeout = 10 * time.Second

type AlipayStrategy struct {
	client *alipay.Client
	config config.AlipayConfig
}

func NewAlipayStrategy(cfg config.AlipayConfig) (*AlipayStrategy, error) {
	if cfg.AppID == "" {
		return nil, errors.New("alipay config missing")
	}

	client, err := alipay.New(cfg.AppID, cfg.PrivateKey, cfg.IsProduction,
		alipay.WithHTTPClient(&http.Client{Timeout: alipayHTTPTimeout}))
	if err != nil {
		return nil, err
	}

	// 加载支付宝公钥 (用于验证签名)
	if err = client.LoadAliPayPublicKey(cfg.PublicKey); err != nil {
		return nil, err
	}

	return &AlipayStrategy{
		client: client,
		config: cfg,
	}, nil
}

func (s *AlipayStrategy) Channel() string { return model.ChannelAlipay }

// NativePay 当面付预下单，返回二维码
func (s *AlipayStrategy) NativePay(ctx context.Context, req NativePayRequest) (*NativePayResponse, error) {
	p := alipay.TradePreCreate{}
	p.NotifyURL = s.config.NotifyURL
	p.Subject = req.Memo
	p.OutTradeNo = req.TradingOrderNo
	p.TotalAmount = req.Amount.StringFixed(2)

	rsp, err := callWithContext(ctx, func() (*alipay.TradePreCreateRsp, error) {
		return s.client.TradePreCreate(p)
	})
	if err != nil {
		return nil, err
	}
	if rsp.IsFailure() {
		return nil, fmt.Errorf("alipay precreate: %s %s", rsp.SubCode, rsp.SubMsg)
	}

	return &NativePayResponse{
		TradingOrderNo: req.TradingOrderNo,
		TradingChannel: model.ChannelAlipay,
		QRCode:         rsp.QRCode,
	}, nil
}

func (s *AlipayStrategy) Query(ctx context.Context, tradingOrderNo string) (*TradeResult, error) {
	rsp, err := callWithContext(ctx, func() (*alipay.TradeQueryRsp, error) {
		return s.client.TradeQuery(alipay.TradeQuery{OutTradeNo: tradingOrderNo})
	})
	if err != nil {
		return nil, err
	}

	result := &TradeResult{TradingOrderNo: tradingOrderNo, Channel: model.ChannelAlipay}
	if rsp.IsFailure() {
		// 用户未扫码时支付宝侧还没有交易
		if rsp.SubCode == "ACQ.TRADE_NOT_EXIST" {
			result.State = TradeStatePaying
			return result, nil
		}
		return nil, fmt.Errorf("alipay query: %s %s", rsp.SubCode, rsp.SubMsg)
	}

	result.State = alipayTradeState(rsp.TradeStatus)
	result.TransactionID = rsp.TradeNo
	result.Amount, _ = decimal.NewFromString(rsp.TotalAmount)
	result.PayTime = parseAlipayTime(rsp.SendPayDate)
	return result, nil
}

func (s *AlipayStrategy) Refund(ctx context.Context, cmd RefundCommand) (*RefundResult, error) {
	p := alipay.TradeRefund{
		OutTradeNo:   cmd.TradingOrderNo,
		RefundAmount: cmd.Amount.StringFixed(2),
		OutRequestNo: cmd.RefundNo,
		RefundReason: "order cancelled",
	}

	rsp, err := callWithContext(ctx, func() (*alipay.TradeRefundRsp, error) {
		return s.client.TradeRefund(p)
	})
	if err != nil {
		return nil, err
	}
	if rsp.IsFailure() {
		// 业务错误（交易不存在、状态不允许退款等）视为终态失败
		if alipayRetryable(string(rsp.Code)) {
			return &RefundResult{Result: RefundPending, RefundNo: cmd.RefundNo}, nil
		}
		return &RefundResult{Result: RefundFailed, RefundNo: cmd.RefundNo}, nil
	}

	result := &RefundResult{Result: RefundPending, RefundID: rsp.TradeNo, RefundNo: cmd.RefundNo}
	if rsp.FundChange == "Y" {
		result.Result = RefundSuccess
	}
	return result, nil
}

// Notify 处理回调，params 预期是 url.Values (gin context.Request.Form)
func (s *AlipayStrategy) Notify(ctx context.Context, params interface{}) (*TradeResult, error) {
	values, ok := params.(url.Values)
	if !ok {
		return nil, errors.New("invalid params type, expected url.Values")
	}

	// 1. 验证签名
	noti, err := s.client.DecodeNotification(values)
	if err != nil {
		return nil, err
	}

	// 2. 解析交易状态
	amount, _ := decimal.NewFromString(noti.TotalAmount)
	return &TradeResult{
		TradingOrderNo: noti.OutTradeNo,
		Channel:        model.ChannelAlipay,
		State:          alipayTradeState(noti.TradeStatus),
		TransactionID:  noti.TradeNo,
		PayTime:        parseAlipayTime(noti.GmtPayment),
		Amount:         amount,
	}, nil
}

// alipayTradeState TRADE_SUCCESS 或 TRADE_FINISHED 表示已支付
func alipayTradeState(status alipay.TradeStatus) TradeState {
	switch status {
	case alipay.TradeStatusSuccess, alipay.TradeStatusFinished:
		return TradeStatePaid
	case alipay.TradeStatusClosed:
		return TradeStateClosed
	default:
		return TradeStatePaying
	}
}

// alipayRetryable 20000 服务暂不可用，留待下次重试
func alipayRetryable(code string) bool {
	return code == "20000"
}

// callWithContext ctx 结束时立即返回，SDK 调用在后台由 http.Client 超时收尾
func callWithContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := call()
		done <- result{val: val, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func parseAlipayTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.ParseInLocation(alipayTimeLayout, v, alipayLocation)
	if err != nil {
		return nil
	}
	return &t
}

// 确保实现了接口
var _ PaymentStrategy = (*AlipayStrategy)(nil)
