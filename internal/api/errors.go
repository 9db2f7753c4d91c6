package api

import (
	"context"
	"errors"
	"net/http"

	"ssfile/internal/storage"
)

// 对外的错误信息固定，不暴露路径或内部错误。
const (
	msgNotFound  = "The requested upload could not be found"
	msgCorrupt   = "The requested upload had a bad file backing it up"
	msgInternal  = "internal error"
	msgExhausted = "no free upload name, try again"
	msgTooLarge  = "upload exceeds size limit"
	msgCanceled  = "request canceled"
)

// errorStatus 把存储层错误映射为 HTTP 状态码和可公开的消息。
func errorStatus(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, storage.ErrCorruptObject):
		return http.StatusNotFound, msgCorrupt
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, msgTooLarge
	case errors.Is(err, storage.ErrInvalidObject):
		return http.StatusBadRequest, "invalid upload metadata"
	case errors.Is(err, storage.ErrAllocationExhausted):
		return http.StatusServiceUnavailable, msgExhausted
	case errors.Is(err, context.Canceled):
		return http.StatusBadRequest, msgCanceled
	default:
		return http.StatusInternalServerError, msgInternal
	}
}
