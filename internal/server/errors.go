package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/bancapix/server/internal/common"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// Порядок важен: ErrTokenNotFound проверяется раньше ErrNotFound.
var errorTable = []errorMapping{
	{common.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{common.ErrBelowMinimum, http.StatusBadRequest, "below_minimum"},
	{common.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{common.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{common.ErrForbidden, http.StatusForbidden, "invalid_csrf"},
	{common.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts"},
	{common.ErrTokenNotFound, http.StatusNotFound, "token_not_found"},
	{common.ErrNotFound, http.StatusNotFound, "not_found"},
	{common.ErrNotCompleted, http.StatusConflict, "payment_not_completed"},
	{common.ErrAmountMismatch, http.StatusConflict, "amount_mismatch"},
	{common.ErrConflict, http.StatusConflict, "conflict"},
	{common.ErrUpstream, http.StatusInternalServerError, "provider_error"},
	{common.ErrUpstreamData, http.StatusInternalServerError, "provider_data_error"},
	{common.ErrStorage, http.StatusInternalServerError, "storage_error"},
}

// classify переводит ошибку в HTTP-статус и машинный код.
func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, httpCode(he.Code)
	}
	return http.StatusInternalServerError, "internal_error"
}

func httpCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	}
	if status >= 400 && status < 500 {
		return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
	}
	return "internal_error"
}

// handleError — HTTPErrorHandler echo. Детали 5xx только в логе.
func handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, code := classify(err)
	body := ErrorResponse{Error: code}
	if status == http.StatusBadRequest {
		body.Message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"component":  "http",
			"request_id": common.RequestID(c.Request().Context()),
			"route":      c.Path(),
			"code":       code,
		}).WithError(err).Error("Ошибка обработки запроса")
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		log.WithError(werr).Warn("Не удалось отправить ответ с ошибкой")
	}
}
