package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 鉴权错误 100xx
	ErrAuthFailed   = 10003
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 订单模块错误 300xx
	ErrOrderNotFound      = 30001
	ErrOrderStateChanged  = 30002 // 并发修改，订单状态已变化
	ErrOrderNotCancelable = 30003
	ErrOrderInvalidStatus = 30004
	ErrPaymentGateway     = 30005
	ErrOrderAlreadyExists = 30006
	ErrNotifyVerifyFailed = 30007

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
)
