// Package httperror 把服务层错误映射为 HTTP 状态码和面向用户的文案。
package httperror

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm"
	personaservice "github.com/zhouzirui/mirror-persona/backend/internal/service/persona"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/session"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/vision"
	"github.com/zhouzirui/mirror-persona/backend/pkg/utils"
)

// Status 返回 err 对应的状态码与提示文字。
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionEnded):
		return http.StatusNotFound, session.ErrSessionNotFound.Error()
	case errors.Is(err, session.ErrSessionBusy),
		errors.Is(err, session.ErrReplyPending),
		errors.Is(err, session.ErrNoCharacter):
		return http.StatusConflict, err.Error()
	case errors.Is(err, session.ErrEmptyMessage),
		errors.Is(err, session.ErrAttributeRequired),
		errors.Is(err, llm.ErrCredentialRequired),
		errors.Is(err, vision.ErrEmptyImage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, llm.ErrInvalidCredential):
		return http.StatusUnauthorized, "Invalid API Key: " + causeOf(err, llm.ErrInvalidCredential)
	case errors.Is(err, llm.ErrCredentialCheck):
		return http.StatusBadGateway, "An error occurred during configuration: " + causeOf(err, llm.ErrCredentialCheck)
	case errors.Is(err, personaservice.ErrSynthesis):
		return http.StatusBadGateway, "Failed to create character: " + causeOf(err, personaservice.ErrSynthesis)
	case errors.Is(err, vision.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream model timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request canceled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// Respond 以 JSON 错误体写出 err。
func Respond(w http.ResponseWriter, err error) {
	status, message := Status(err)
	utils.RespondError(w, status, message)
}

// causeOf 去掉包装原因时加上的 "sentinel: " 前缀。
func causeOf(err, sentinel error) string {
	if cause, ok := strings.CutPrefix(err.Error(), sentinel.Error()+": "); ok {
		return cause
	}
	return err.Error()
}
