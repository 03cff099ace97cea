// Package handler содержит HTTP-обработчики API сервиса бонусов филиалов.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-ledger/internal/middleware"
	"github.com/mmeshcher/bonus-ledger/internal/model"
	"github.com/mmeshcher/bonus-ledger/internal/repository"
	"github.com/mmeshcher/bonus-ledger/internal/service"
)

const maxBodyBytes = 1 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)

	CreateRevenue(ctx context.Context, userID int64, rev model.Revenue) (*model.Revenue, error)
	ListRevenues(ctx context.Context, branchID string, from, to time.Time) ([]model.Revenue, error)
	DeleteRevenue(ctx context.Context, id int64) error

	PreviewCurrentWeek(ctx context.Context, branchID string, now time.Time) (*service.Preview, error)
	ApproveWeek(ctx context.Context, branchID, branchName string, actorID int64, now time.Time) (*service.ApprovalResult, error)
	ListApprovals(ctx context.Context, branchID string) ([]model.BonusApproval, error)
	GetApproval(ctx context.Context, id int64) (*model.BonusApproval, error)
	VerifyApproval(ctx context.Context, id int64) (*service.Verification, error)

	Location() *time.Location
}

// RouteLimits задаёт middleware ограничения частоты для чувствительных маршрутов.
type RouteLimits struct {
	Login   func(http.Handler) http.Handler
	Approve func(http.Handler) http.Handler
}

// Handler реализует HTTP-обработчики API сервиса бонусов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validator.Validate
	limits         RouteLimits
	corsOrigins    []string
	now            func() time.Time
}

// Option настраивает Handler.
type Option func(*Handler)

// WithRouteLimits включает ограничение частоты запросов на вход и утверждение.
func WithRouteLimits(l RouteLimits) Option {
	return func(h *Handler) { h.limits = l }
}

// WithCORSOrigins разрешает кросс-доменные запросы с указанных адресов.
func WithCORSOrigins(origins []string) Option {
	return func(h *Handler) { h.corsOrigins = origins }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	h := &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

// decode читает тело запроса в dst и проверяет теги validate.
func (h *Handler) decode(r *http.Request, dst any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return h.validate.Struct(dst)
}

func (h *Handler) userID(r *http.Request) (int64, error) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		return 0, errUnauthenticated
	}
	return id, nil
}

type credentialsRequest struct {
	Login    string `json:"login" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, err, "register decode error")
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.fail(w, err, "register user error", zap.String("login", req.Login))
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, err, "login decode error")
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			err = service.ErrInvalidCredentials
		}
		h.fail(w, err, "login user error", zap.String("login", req.Login))
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Logout удаляет cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}
