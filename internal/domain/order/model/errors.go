package model

import "errors"

var (
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition 当前状态下不存在该事件对应的流转
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleState 条件更新未命中，订单已被并发修改
	ErrStaleState            = errors.New("order state already changed")
	ErrValidation            = errors.New("validation failed")
	ErrExternalService       = errors.New("external service error")
	ErrUnsupportedTransition = errors.New("current status does not support cancellation")
	ErrAlreadyExists         = errors.New("order snapshot already exists")
)
