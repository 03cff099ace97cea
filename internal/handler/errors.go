package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-ledger/internal/bonus"
	"github.com/mmeshcher/bonus-ledger/internal/repository"
	"github.com/mmeshcher/bonus-ledger/internal/service"
	"github.com/mmeshcher/bonus-ledger/internal/validation"
)

// Kind классифицирует ошибку для клиента API.
type Kind string

const (
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindBadRequest      Kind = "BAD_REQUEST"
	KindConflict        Kind = "CONFLICT"
	KindNotFound        Kind = "NOT_FOUND"
	KindInternal        Kind = "INTERNAL"
)

var (
	errUnauthenticated = errors.New("authentication required")
	errMalformedBody   = errors.New("malformed request body")
	errInvalidID       = errors.New("invalid id")
	errInvalidDate     = errors.New("invalid date, want YYYY-MM-DD")
)

var errorKinds = []struct {
	err  error
	kind Kind
}{
	{errUnauthenticated, KindUnauthenticated},
	{service.ErrInvalidCredentials, KindUnauthenticated},

	{errMalformedBody, KindBadRequest},
	{errInvalidID, KindBadRequest},
	{errInvalidDate, KindBadRequest},
	{validation.ErrInvalidRevenue, KindBadRequest},
	{validation.ErrMismatchReasonRequired, KindBadRequest},
	{service.ErrBranchRequired, KindBadRequest},
	{service.ErrInvalidPeriod, KindBadRequest},
	{service.ErrNotApprovalDay, KindBadRequest},
	{bonus.ErrInvalidWeek, KindBadRequest},

	{repository.ErrApprovalExists, KindConflict},
	{repository.ErrRevenueLocked, KindConflict},
	{repository.ErrUserExists, KindConflict},

	{repository.ErrApprovalNotFound, KindNotFound},
	{repository.ErrRevenueNotFound, KindNotFound},
	{repository.ErrUserNotFound, KindNotFound},
}

// KindOf возвращает вид ошибки; неизвестные ошибки считаются внутренними.
func KindOf(err error) Kind {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return KindBadRequest
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

func (k Kind) status() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Code    Kind   `json:"code"`
	Message string `json:"message"`
}

// fail пишет ошибку в ответ. Внутренние ошибки логируются, а клиент получает общее сообщение.
func (h *Handler) fail(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	kind := KindOf(err)
	message := err.Error()
	if kind == KindInternal {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		message = http.StatusText(http.StatusInternalServerError)
	}
	h.writeJSON(w, kind.status(), errorResponse{Code: kind, Message: message})
}
