package xerr

import (
	"errors"
	"fmt"
)

// 进程退出码，同时作为 CodeError 的 Code 使用
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitForfeit = 2 // 断线预算耗尽，主动放弃
	ExitConfig  = 3
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Err  error  `json:"-"`
}

func (e *CodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ErrCode:%d, Msg:%s, Err:%v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.Err }

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// Wrap 给底层错误挂上退出码；err 为 nil 时返回 nil
func Wrap(err error, code int, msg string) error {
	if err == nil {
		return nil
	}
	return &CodeError{Code: code, Msg: msg, Err: err}
}

// CodeOf 取出错误链上的退出码。nil => ExitOK，非 CodeError => ExitFatal
func CodeOf(err error) int {
	if err == nil {
		return ExitOK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ExitFatal
}

func MapErrMsg(code int) string {
	switch code {
	case ExitOK:
		return "ok"
	case ExitFatal:
		return "fatal error"
	case ExitForfeit:
		return "disconnect budget exhausted"
	case ExitConfig:
		return "invalid config"
	default:
		return "unknown error"
	}
}
