// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"
	CodeCancelled          ErrorCode = "1009"

	// 配置与能力错误 (3xxx)
	CodeUnsupportedProvider   ErrorCode = "3001"
	CodeUnsupportedTarget     ErrorCode = "3002"
	CodeMissingCredential     ErrorCode = "3003"
	CodeCapabilityUnsupported ErrorCode = "3004"

	// 调用错误 (4xxx)
	CodeTimeout            ErrorCode = "4001"
	CodeTransportError     ErrorCode = "4002"
	CodeBackendRejected    ErrorCode = "4003"
	CodeValidationDegraded ErrorCode = "4004"

	// 外部服务错误 (5xxx)
	CodeDatabaseError  ErrorCode = "5001"
	CodeCacheError     ErrorCode = "5002"
	CodeMessagingError ErrorCode = "5003"
)

var codeNames = map[ErrorCode]string{
	CodeSuccess:               "Success",
	CodeUnknown:               "Unknown",
	CodeInvalidParam:          "InvalidParam",
	CodeNotFound:              "NotFound",
	CodeConflict:              "Conflict",
	CodeTooManyRequests:       "TooManyRequests",
	CodeInternalError:         "Internal",
	CodeServiceUnavailable:    "ServiceUnavailable",
	CodeCancelled:             "Cancelled",
	CodeUnsupportedProvider:   "UnsupportedProvider",
	CodeUnsupportedTarget:     "UnsupportedTarget",
	CodeMissingCredential:     "MissingCredential",
	CodeCapabilityUnsupported: "CapabilityUnsupported",
	CodeTimeout:               "Timeout",
	CodeTransportError:        "TransportError",
	CodeBackendRejected:       "BackendRejected",
	CodeValidationDegraded:    "ValidationDegraded",
	CodeDatabaseError:         "DatabaseError",
	CodeCacheError:            "CacheError",
	CodeMessagingError:        "MessagingError",
}

// Name 返回错误码的可读名称，用于结果信封中的 error_code
func (c ErrorCode) Name() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return string(c)
}

// IsInvocation 是否属于后端调用错误
func (c ErrorCode) IsInvocation() bool {
	return c == CodeTimeout || c == CodeTransportError || c == CodeBackendRejected
}

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Newf 使用格式化消息创建应用错误
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeUnsupportedProvider, CodeUnsupportedTarget,
		CodeMissingCredential, CodeCapabilityUnsupported:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeTransportError, CodeBackendRejected:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// CodeOf 返回错误链中 AppError 的错误码
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeSuccess
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// Is 判断错误链中是否包含指定错误码
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
