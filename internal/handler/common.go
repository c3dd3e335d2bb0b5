// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/errors"
)

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应
func respondError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.Wrap(err, errors.CodeInternal, "内部错误")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"code":    appErr.Code,
		"message": appErr.Message,
		"details": appErr.Details,
		"fields":  appErr.Fields,
	})
}

// requireMethod 校验请求方法
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持"+method+"方法"))
		return false
	}
	return true
}

// parseUUID 解析UUID参数
func parseUUID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, errors.InvalidInput(field, "无效的UUID格式: "+value)
	}
	return id, nil
}

// queryUUID 从查询参数解析UUID
func queryUUID(r *http.Request, field string) (uuid.UUID, error) {
	value := r.URL.Query().Get(field)
	if value == "" {
		return uuid.Nil, errors.InvalidInput(field, "不能为空")
	}
	return parseUUID(field, value)
}
