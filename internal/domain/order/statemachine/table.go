package statemachine

import (
	"fmt"

	"orders_manager/internal/domain/order/model"
)

// StatusNone 订单创建前的虚拟起始状态
const StatusNone model.OrderStatus = -1

// Effect 流转附带的副作用
type Effect int

const (
	EffectInitSnapshot Effect = iota + 1
	EffectRecordPayment
	EffectRecordCancel
	EffectRecordClose
)

// Transition 流转表中的一行 (Source, Event) -> Target
type Transition struct {
	Source model.OrderStatus
	Event  model.StatusChangeEvent
	Target model.OrderStatus
	Effect Effect
}

// Table 订单状态流转表
type Table []Transition

// DefaultTable 订单状态流转表
var DefaultTable = Table{
	{Source: StatusNone, Event: model.EventPlaced, Target: model.OrderStatusNoPay, Effect: EffectInitSnapshot},
	{Source: model.OrderStatusNoPay, Event: model.EventPayed, Target: model.OrderStatusDispatching, Effect: EffectRecordPayment},
	{Source: model.OrderStatusNoPay, Event: model.EventCancel, Target: model.OrderStatusCanceled, Effect: EffectRecordCancel},
	{Source: model.OrderStatusDispatching, Event: model.EventCloseDispatchingOrder, Target: model.OrderStatusClosed, Effect: EffectRecordClose},
}

var knownStates = map[model.OrderStatus]bool{
	StatusNone:                   true,
	model.OrderStatusNoPay:       true,
	model.OrderStatusDispatching: true,
	model.OrderStatusNoServe:     true,
	model.OrderStatusServing:     true,
	model.OrderStatusFinished:    true,
	model.OrderStatusCanceled:    true,
	model.OrderStatusClosed:      true,
}

var knownEvents = map[model.StatusChangeEvent]bool{
	model.EventPlaced:                true,
	model.EventPayed:                 true,
	model.EventCancel:                true,
	model.EventCloseDispatchingOrder: true,
}

type transitionKey struct {
	source model.OrderStatus
	event  model.StatusChangeEvent
}

// Validate 启动时校验流转表
// 1. 状态与事件均已声明
// 2. 同一 (Source, Event) 不能指向不同 Target
// 3. 每条流转的 Source 都能从起始状态到达
func Validate(table Table) error {
	seen := make(map[transitionKey]model.OrderStatus, len(table))
	for _, tr := range table {
		if !knownStates[tr.Source] || !knownStates[tr.Target] {
			return fmt.Errorf("transition %s -[%s]-> %s references an unknown state", tr.Source, tr.Event, tr.Target)
		}
		if tr.Target == StatusNone {
			return fmt.Errorf("transition %s -[%s]-> none: the initial state cannot be a target", tr.Source, tr.Event)
		}
		if !knownEvents[tr.Event] {
			return fmt.Errorf("transition %s -[%s]-> %s references an unknown event", tr.Source, tr.Event, tr.Target)
		}
		key := transitionKey{tr.Source, tr.Event}
		if target, ok := seen[key]; ok && target != tr.Target {
			return fmt.Errorf("conflicting transitions for (%s, %s): %s and %s", tr.Source, tr.Event, target, tr.Target)
		}
		seen[key] = tr.Target
	}

	reachable := map[model.OrderStatus]bool{StatusNone: true}
	for changed := true; changed; {
		changed = false
		for _, tr := range table {
			if reachable[tr.Source] && !reachable[tr.Target] {
				reachable[tr.Target] = true
				changed = true
			}
		}
	}
	for _, tr := range table {
		if !reachable[tr.Source] {
			return fmt.Errorf("transition %s -[%s]-> %s is unreachable from the initial state", tr.Source, tr.Event, tr.Target)
		}
	}
	return nil
}

// lookup 查找 (source, event) 对应的流转
func (t Table) lookup(source model.OrderStatus, event model.StatusChangeEvent) (Transition, bool) {
	for _, tr := range t {
		if tr.Source == source && tr.Event == event {
			return tr, true
		}
	}
	return Transition{}, false
}

// columns 流转写入订单行的字段
func (tr Transition) columns(delta model.StatusDelta) map[string]interface{} {
	cols := map[string]interface{}{"orders_status": tr.Target}
	switch tr.Effect {
	case EffectRecordPayment:
		cols["pay_status"] = model.PayStatusPaySuccess
		if delta.PayTime != nil {
			cols["pay_time"] = *delta.PayTime
		}
		if delta.TradingOrderNo != "" {
			cols["trading_order_no"] = delta.TradingOrderNo
		}
		if delta.TradingChannel != "" {
			cols["trading_channel"] = delta.TradingChannel
		}
		cols["transaction_id"] = delta.TransactionID
	case EffectRecordCancel:
		if delta.CancelTime != nil {
			cols["cancel_time"] = *delta.CancelTime
		}
	case EffectRecordClose:
		if delta.CancelTime != nil {
			cols["cancel_time"] = *delta.CancelTime
		}
		cols["refund_status"] = model.RefundStatusRefunding
	}
	return cols
}

// apply 将流转结果合并进快照
func (tr Transition) apply(snap *model.OrderSnapshot, delta model.StatusDelta) {
	snap.Apply(tr.Target, delta)
	switch tr.Effect {
	case EffectRecordPayment:
		snap.PayStatus = model.PayStatusPaySuccess
	case EffectRecordClose:
		snap.RefundStatus = model.RefundStatusRefunding
	}
}
