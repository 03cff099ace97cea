// Package service реализует бизнес-логику сервиса бонусов филиалов.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-ledger/internal/model"
	"github.com/mmeshcher/bonus-ledger/internal/notify"
	"github.com/mmeshcher/bonus-ledger/internal/repository"
	"github.com/mmeshcher/bonus-ledger/internal/validation"
)

var (
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrBranchRequired возвращается, если не указан идентификатор филиала.
	ErrBranchRequired = errors.New("branch id is required")
	// ErrInvalidPeriod возвращается, если начало периода позже его конца.
	ErrInvalidPeriod = errors.New("invalid period")
)

// UserStore описывает хранилище пользователей.
type UserStore interface {
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// LedgerStore описывает хранилище дневной выручки.
type LedgerStore interface {
	CreateRevenue(ctx context.Context, rev *model.Revenue) (int64, error)
	GetRevenue(ctx context.Context, id int64) (*model.Revenue, error)
	GetRevenuesByBranchAndDateRange(ctx context.Context, branchID string, from, to time.Time) ([]model.Revenue, error)
	MarkApprovedForBonus(ctx context.Context, ids ...int64) error
	DeleteRevenue(ctx context.Context, id int64) error
}

// RecordStore описывает хранилище утверждений бонусов.
type RecordStore interface {
	GetApprovalByKey(ctx context.Context, key model.WeekKey) (*model.BonusApproval, error)
	GetApprovalByID(ctx context.Context, id int64) (*model.BonusApproval, error)
	InsertApproval(ctx context.Context, a *model.BonusApproval, revenueIDs []int64, event *model.ApprovalEvent) (int64, error)
	ListApprovalsByBranch(ctx context.Context, branchID string) ([]model.BonusApproval, error)
}

// OutboxStore описывает очередь событий об утверждениях.
type OutboxStore interface {
	GetPendingEvents(ctx context.Context, limit int) ([]model.ApprovalEvent, error)
	MarkEventDelivered(ctx context.Context, id int64, at time.Time) error
	MarkEventFailed(ctx context.Context, id int64) error
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	UserStore
	LedgerStore
	RecordStore
	OutboxStore
}

// Notifier отправляет уведомления об утверждениях во внешнюю систему.
type Notifier interface {
	SendApproval(ctx context.Context, n notify.ApprovalNotice) (int, time.Duration, error)
}

// Service содержит бизнес-логику сервиса бонусов.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *zap.Logger
	loc      *time.Location
}

// NewService создаёт новый сервис. Все недельные расчёты выполняются в часовом поясе loc.
// Если notifier равен nil, уведомления не отправляются.
func NewService(repo Repository, notifier Notifier, logger *zap.Logger, loc *time.Location) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		loc:      loc,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Location возвращает часовой пояс, в котором считаются бонусные недели.
func (s *Service) Location() *time.Location {
	return s.loc
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if subtle.ConstantTimeCompare(hashed, u.PasswordHash) != 1 {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// CreateRevenue проверяет и сохраняет дневную запись выручки от имени пользователя userID.
// Дата записи приводится к началу дня в часовом поясе сервиса.
func (s *Service) CreateRevenue(ctx context.Context, userID int64, rev model.Revenue) (*model.Revenue, error) {
	check, err := validation.CheckRevenue(&rev)
	if err != nil {
		return nil, err
	}

	y, m, d := rev.Date.In(s.loc).Date()
	rev.Date = time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	rev.Total = check.Total
	rev.IsMatched = check.IsMatched
	rev.IsApprovedForBonus = false
	rev.UserID = userID

	id, err := s.repo.CreateRevenue(ctx, &rev)
	if err != nil {
		return nil, fmt.Errorf("create revenue: %w", err)
	}
	rev.ID = id

	return &rev, nil
}

// ListRevenues возвращает выручку филиала за период [from, to] включительно.
func (s *Service) ListRevenues(ctx context.Context, branchID string, from, to time.Time) ([]model.Revenue, error) {
	if strings.TrimSpace(branchID) == "" {
		return nil, ErrBranchRequired
	}
	if to.Before(from) {
		return nil, ErrInvalidPeriod
	}
	return s.repo.GetRevenuesByBranchAndDateRange(ctx, branchID, from, to)
}

// DeleteRevenue удаляет запись выручки. Выручку, учтённую в утверждённых бонусах, удалить нельзя.
func (s *Service) DeleteRevenue(ctx context.Context, id int64) error {
	return s.repo.DeleteRevenue(ctx, id)
}
