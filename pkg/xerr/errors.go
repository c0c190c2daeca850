package xerr

import (
	"errors"
	"fmt"
)

// 常用错误码定义
const (
	OK                = 200
	InvalidOrder      = 400
	RateLimited       = 429
	ServerCommonError = 500
	EngineBusy        = 503
)

type CodeError struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	Cause error  `json:"-"`
}

func (e *CodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ErrCode:%d, Msg:%s, Cause:%v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

// Unwrap 让 errors.Is/As 能看到底层的哨兵错误
func (e *CodeError) Unwrap() error { return e.Cause }

// Wrap 用错误码包装 cause，cause 为 nil 时返回 nil
func Wrap(code int, cause error) error {
	if cause == nil {
		return nil
	}
	return &CodeError{Code: code, Msg: MapErrMsg(code), Cause: cause}
}

// CodeOf 取错误链上第一个 CodeError 的错误码；nil 为 OK，其它错误为 ServerCommonError
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

func MapErrMsg(code int) string {
	switch code {
	case OK:
		return "成功"
	case InvalidOrder:
		return "订单参数错误"
	case RateLimited:
		return "下单太频繁"
	case EngineBusy:
		return "撮合引擎繁忙"
	case ServerCommonError:
		return "服务器开小差了"
	default:
		return "未知错误"
	}
}
