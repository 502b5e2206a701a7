package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"orders_manager/internal/domain/order/model"
	"orders_manager/internal/pkg/config"

	"github.com/shopspring/decimal"
	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/auth/verifiers"
	"github.com/wechatpay-apiv3/wechatpay-go/core/downloader"
	"github.com/wechatpay-apiv3/wechatpay-go/core/notify"
	"github.com/wechatpay-apiv3/wechatpay-go/core/option"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments/native"
	"github.com/wechatpay-apiv3/wechatpay-go/services/refunddomestic"
	"github.com/wechatpay-apiv3/wechatpay-go/utils"
)

type WechatStrategy struct {
	client  *core.Client
	config  config.WechatPayConfig
	handler *notify.Handler
}

func NewWechatStrategy(ctx context.Context, cfg config.WechatPayConfig) (*WechatStrategy, error) {
	if cfg.MchID == "" {
		return nil, errors.New("wechat pay config missing")
	}

	// 1. 加载商户私钥
	mchPrivateKey, err := utils.LoadPrivateKey(cfg.MchPrivateKey)
	if err != nil {
		return nil, err
	}

	// 2. 初始化 Client，自动下载平台证书
	opts := []core.ClientOption{
		option.WithWechatPayAutoAuthCipher(cfg.MchID, cfg.MchCertificateSerial, mchPrivateKey, cfg.APIv3Key),
	}
	client, err := core.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	// 3. 回调验签
	certVisitor := downloader.MgrInstance().GetCertificateVisitor(cfg.MchID)
	handler := notify.NewNotifyHandler(cfg.APIv3Key, verifiers.NewSHA256WithRSAVerifier(certVisitor))

	return &WechatStrategy{
		client:  client,
		config:  cfg,
		handler: handler,
	}, nil
}

func (s *WechatStrategy) Channel() string { return model.ChannelWechat }

// NativePay Native 下单，返回 code_url
func (s *WechatStrategy) NativePay(ctx context.Context, req NativePayRequest) (*NativePayResponse, error) {
	svc := native.NativeApiService{Client: s.client}
	resp, _, err := svc.Prepay(ctx, native.PrepayRequest{
		Appid:       core.String(s.config.AppID),
		Mchid:       core.String(s.config.MchID),
		Description: core.String(req.Memo),
		OutTradeNo:  core.String(req.TradingOrderNo),
		NotifyUrl:   core.String(s.config.NotifyURL),
		Amount: &native.Amount{
			Total:    core.Int64(toFen(req.Amount)),
			Currency: core.String("CNY"),
		},
	})
	if err != nil {
		return nil, err
	}

	return &NativePayResponse{
		TradingOrderNo: req.TradingOrderNo,
		TradingChannel: model.ChannelWechat,
		QRCode:         stringValue(resp.CodeUrl),
	}, nil
}

func (s *WechatStrategy) Query(ctx context.Context, tradingOrderNo string) (*TradeResult, error) {
	svc := native.NativeApiService{Client: s.client}
	tx, _, err := svc.QueryOrderByOutTradeNo(ctx, native.QueryOrderByOutTradeNoRequest{
		OutTradeNo: core.String(tradingOrderNo),
		Mchid:      core.String(s.config.MchID),
	})
	if err != nil {
		var apiErr *core.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "ORDER_NOT_EXIST" {
			return &TradeResult{TradingOrderNo: tradingOrderNo, Channel: model.ChannelWechat, State: TradeStatePaying}, nil
		}
		return nil, err
	}
	return wechatTradeResult(tx), nil
}

func (s *WechatStrategy) Refund(ctx context.Context, cmd RefundCommand) (*RefundResult, error) {
	fen := toFen(cmd.Amount)
	svc := refunddomestic.RefundsApiService{Client: s.client}
	resp, _, err := svc.Create(ctx, refunddomestic.CreateRequest{
		OutTradeNo:  core.String(cmd.TradingOrderNo),
		OutRefundNo: core.String(cmd.RefundNo),
		Reason:      core.String("order cancelled"),
		Amount: &refunddomestic.AmountReq{
			Refund:   core.Int64(fen),
			Total:    core.Int64(fen),
			Currency: core.String("CNY"),
		},
	})
	if err != nil {
		var apiErr *core.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError && !wechatRetryable(apiErr.Code) {
			return &RefundResult{Result: RefundFailed, RefundNo: cmd.RefundNo}, nil
		}
		return nil, err
	}

	result := &RefundResult{
		RefundID: stringValue(resp.RefundId),
		RefundNo: stringValue(resp.OutRefundNo),
	}
	if resp.Status != nil {
		result.Result = wechatRefundOutcome(*resp.Status)
	}
	return result, nil
}

// Notify params 预期是 *http.Request
func (s *WechatStrategy) Notify(ctx context.Context, params interface{}) (*TradeResult, error) {
	req, ok := params.(*http.Request)
	if !ok {
		return nil, errors.New("invalid params type, expected *http.Request")
	}

	transaction := new(payments.Transaction)
	if _, err := s.handler.ParseNotifyRequest(ctx, req, transaction); err != nil {
		return nil, fmt.Errorf("parse wechat notify: %w", err)
	}
	return wechatTradeResult(transaction), nil
}

func wechatTradeResult(tx *payments.Transaction) *TradeResult {
	result := &TradeResult{
		TradingOrderNo: stringValue(tx.OutTradeNo),
		Channel:        model.ChannelWechat,
		State:          wechatTradeState(stringValue(tx.TradeState)),
		TransactionID:  stringValue(tx.TransactionId),
	}
	if tx.Amount != nil && tx.Amount.Total != nil {
		result.Amount = decimal.New(*tx.Amount.Total, -2)
	}
	if tx.SuccessTime != nil {
		if t, err := time.Parse(time.RFC3339, *tx.SuccessTime); err == nil {
			result.PayTime = &t
		}
	}
	return result
}

func wechatTradeState(state string) TradeState {
	switch state {
	case "SUCCESS", "REFUND":
		return TradeStatePaid
	case "CLOSED", "REVOKED":
		return TradeStateClosed
	case "PAYERROR":
		return TradeStateFailed
	default:
		return TradeStatePaying
	}
}

func wechatRefundOutcome(status refunddomestic.Status) RefundOutcome {
	switch status {
	case refunddomestic.STATUS_SUCCESS:
		return RefundSuccess
	case refunddomestic.STATUS_CLOSED, refunddomestic.STATUS_ABNORMAL:
		return RefundFailed
	default:
		return RefundPending
	}
}

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// wechatRetryable 余额不足、频率限制、系统繁忙可以稍后重试
func wechatRetryable(code string) bool {
	switch code {
	case "NOT_ENOUGH", "FREQUENCY_LIMITED", "SYSTEM_ERROR":
		return true
	}
	return false
}

var _ PaymentStrategy = (*WechatStrategy)(nil)
