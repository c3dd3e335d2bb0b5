// Package errors 提供统一的错误处理框架
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 错误码
type Code string

const (
	// 通用错误码
	CodeUnknown       Code = "UNKNOWN"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeTimeout       Code = "TIMEOUT"
	CodeRateLimited   Code = "RATE_LIMITED"

	// 优化会话相关
	CodeInvalidScope       Code = "INVALID_SCOPE"
	CodeSessionNotFound    Code = "SESSION_NOT_FOUND"
	CodeSessionNotDone     Code = "SESSION_NOT_COMPLETED"
	CodeCancelNotAllowed   Code = "CANCEL_NOT_ALLOWED"
	CodeBudgetExceeded     Code = "BUDGET_EXCEEDED"
	CodeStageFailed        Code = "STAGE_FAILED"
	CodeConstraintEvalFail Code = "CONSTRAINT_EVAL_FAILED"

	// 批量应用相关
	CodeConflictsFound  Code = "CONFLICTS_FOUND"
	CodeCommitFailed    Code = "COMMIT_FAILED"
	CodeRollbackFailed  Code = "ROLLBACK_FAILED"
	CodeNotPilotStage   Code = "NOT_PILOT_STAGE"
	CodeSuggestionState Code = "SUGGESTION_STATE_INVALID"

	// 目录配置相关
	CodeGoalWeightsInvalid Code = "GOAL_WEIGHTS_INVALID"
	CodeConstraintInvalid  Code = "CONSTRAINT_DEFINITION_INVALID"

	// 数据相关
	CodeDatabaseError  Code = "DATABASE_ERROR"
	CodeValidationFail Code = "VALIDATION_FAILED"
)

// AppError 应用错误
type AppError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Cause      error                  `json:"-"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithField 添加字段
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// New 创建新错误
func New(code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// codeToHTTPStatus 错误码转HTTP状态码
func codeToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeValidationFail, CodeInvalidScope, CodeConstraintInvalid:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeSessionNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeConflictsFound, CodeSuggestionState, CodeCancelNotAllowed:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout, CodeBudgetExceeded:
		return http.StatusGatewayTimeout
	case CodeSessionNotDone, CodeCommitFailed, CodeNotPilotStage:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Is 检查错误是否为特定类型
func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode 获取错误码
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetHTTPStatus 获取HTTP状态码
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// 预定义错误
var (
	ErrNotFound        = New(CodeNotFound, "资源不存在")
	ErrInvalidInput    = New(CodeInvalidInput, "输入参数无效")
	ErrInternal        = New(CodeInternal, "内部错误")
	ErrBudgetExceeded  = New(CodeBudgetExceeded, "优化时间预算已用尽")
	ErrConflictsFound  = New(CodeConflictsFound, "所选建议之间存在排班冲突")
	ErrSessionNotFound = New(CodeSessionNotFound, "优化会话不存在")
)

// InvalidInput 创建输入无效错误
func InvalidInput(field, reason string) *AppError {
	return New(CodeInvalidInput, fmt.Sprintf("字段 '%s' 无效: %s", field, reason))
}

// InvalidScope 创建优化范围无效错误
func InvalidScope(reason string) *AppError {
	return New(CodeInvalidScope, fmt.Sprintf("优化范围无效: %s", reason))
}

// NotFound 创建资源不存在错误
func NotFound(resource, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s '%s' 不存在", resource, id))
}

// ConstraintEvalFailed 创建约束评估失败错误
func ConstraintEvalFailed(constraint, reason string) *AppError {
	return New(CodeConstraintEvalFail, fmt.Sprintf("约束 '%s' 无法评估: %s", constraint, reason))
}

// GoalWeightsInvalid 创建目标权重配置错误
func GoalWeightsInvalid(sum int) *AppError {
	return New(CodeGoalWeightsInvalid, fmt.Sprintf("优化目标权重之和必须为100，当前为 %d", sum))
}

// CommitFailed 创建提交失败错误
func CommitFailed(suggestionID, reason string) *AppError {
	return New(CodeCommitFailed, fmt.Sprintf("建议 %s 提交失败: %s", suggestionID, reason))
}

// ConflictsFound 创建冲突错误
func ConflictsFound(count int) *AppError {
	return New(CodeConflictsFound, fmt.Sprintf("检测到 %d 处操作员时间冲突，需先解决后再应用", count))
}

// ValidationErrors 验证错误集合
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// ValidationError 单个验证错误
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error 实现 error 接口
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "验证失败"
	}
	return fmt.Sprintf("验证失败: %s - %s", ve.Errors[0].Field, ve.Errors[0].Message)
}

// Add 添加验证错误
func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

// HasErrors 检查是否有错误
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError 转换为 AppError
func (ve *ValidationErrors) ToAppError() *AppError {
	err := New(CodeValidationFail, "验证失败")
	err.Fields = make(map[string]interface{})
	for _, e := range ve.Errors {
		err.Fields[e.Field] = e.Message
	}
	return err
}
