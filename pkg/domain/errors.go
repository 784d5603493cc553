package domain

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrPasteNotFound      = NewErr("PASTE_NOT_FOUND", "paste not found or expired", http.StatusNotFound)
	ErrContentRequired    = NewErr("CONTENT_REQUIRED", "text or image required", http.StatusBadRequest)
	ErrTextTooLarge       = NewErr("TEXT_TOO_LARGE", "text exceeds maximum length", http.StatusBadRequest)
	ErrImageTooLarge      = NewErr("IMAGE_TOO_LARGE", "image exceeds maximum size", http.StatusBadRequest)
	ErrImageFormat        = NewErr("IMAGE_FORMAT", "unsupported image format", http.StatusBadRequest)
	ErrInvalidCode        = NewErr("INVALID_CODE", "malformed paste code", http.StatusBadRequest)
	ErrInvalidRequest     = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrCodeSpaceExhausted = NewErr("CODE_SPACE_EXHAUSTED", "no free codes available", http.StatusServiceUnavailable)
	ErrRateLimited        = NewErr("RATE_LIMITED", "too many requests", http.StatusTooManyRequests)
	ErrStoreUnavailable   = NewErr("STORE_UNAVAILABLE", "storage backend unavailable", http.StatusServiceUnavailable)
	ErrInternalServer     = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }
func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}
type ErrDetail struct {
	Code string                 `json:"code"`
	Msg  string                 `json:"message"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

func ToResp(err error) ErrResp {
	if e, ok := err.(*Err); ok {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: "INTERNAL_ERROR", Msg: "internal error"}}
}

func Status(err error) int {
	if e, ok := err.(*Err); ok {
		return e.Status
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
