package errs

import (
	"errors"
	"fmt"
)

// 领域错误码，同时作为 JSON 响应里的 code 字段
// 103 在 HTTP 边界映射为 404，其余错误码一律映射为 500
const (
	CodeSuccess   = 100
	CodeUnknown   = 101
	CodePaypal    = 102 // 校验被拒 / 校验响应异常
	CodeNotFound  = 103
	CodeAmbiguous = 104 // 期望唯一匹配却命中多条
	CodeIdentity  = 105 // SteamID 无法解析
	CodeIntegrity = 106 // 台账不变量被破坏，必须告警
)

// Error 携带错误码的领域错误
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code int, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, format, args...)
}

func Ambiguous(format string, args ...interface{}) *Error {
	return New(CodeAmbiguous, format, args...)
}

func Integrity(format string, args ...interface{}) *Error {
	return New(CodeIntegrity, format, args...)
}

// CodeOf 提取错误链上的领域错误码，非领域错误归为 Unknown
func CodeOf(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeUnknown
}
