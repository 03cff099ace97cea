package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-ledger/internal/bonus"
	"github.com/mmeshcher/bonus-ledger/internal/model"
	"github.com/mmeshcher/bonus-ledger/internal/repository"
)

// ErrNotApprovalDay возвращается при попытке утвердить бонусы не в первый день недели.
var ErrNotApprovalDay = errors.New("bonus can be approved only on the first day of a week")

// Preview содержит предварительный расчёт бонусов филиала.
// Current содержит текущую неделю с накопленной выручкой, Pending содержит последнюю
// завершённую неделю, которую можно утвердить. Признаки утверждения относятся к Pending.
type Preview struct {
	Current           bonus.Summary
	Pending           bonus.Summary
	IsAlreadyApproved bool
	ApprovedAt        *time.Time
	CanApprove        bool
}

// ApprovalResult содержит итог успешного утверждения.
type ApprovalResult struct {
	ApprovalID     int64
	Window         bonus.Window
	TotalBonusPaid decimal.Decimal
}

// Verification содержит результат сверки утверждения с текущими данными выручки.
type Verification struct {
	IsValid       bool
	Discrepancies []model.Discrepancy
}

func (s *Service) windowRevenues(ctx context.Context, branchID string, w bonus.Window) ([]model.Revenue, error) {
	if w.Empty() {
		return nil, nil
	}
	records, err := s.repo.GetRevenuesByBranchAndDateRange(ctx, branchID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("get week revenues: %w", err)
	}
	return records, nil
}

// PreviewCurrentWeek рассчитывает бонусы на момент now без побочных эффектов.
func (s *Service) PreviewCurrentWeek(ctx context.Context, branchID string, now time.Time) (*Preview, error) {
	if strings.TrimSpace(branchID) == "" {
		return nil, ErrBranchRequired
	}

	now = now.In(s.loc)
	current := bonus.ComputeWeekWindow(now)
	pending := bonus.PreviousWindow(current)

	currentRecords, err := s.windowRevenues(ctx, branchID, current)
	if err != nil {
		return nil, err
	}
	pendingRecords, err := s.windowRevenues(ctx, branchID, pending)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		Current: bonus.Summarize(current, currentRecords),
		Pending: bonus.Summarize(pending, pendingRecords),
	}

	existing, err := s.repo.GetApprovalByKey(ctx, pending.Key(branchID))
	switch {
	case err == nil:
		p.IsAlreadyApproved = true
		approvedAt := existing.ApprovedAt
		p.ApprovedAt = &approvedAt
	case errors.Is(err, repository.ErrApprovalNotFound):
	default:
		return nil, fmt.Errorf("get approval: %w", err)
	}

	p.CanApprove = bonus.IsApprovalDay(now.Day()) && !p.IsAlreadyApproved

	return p, nil
}

// ApproveWeek утверждает бонусы последней завершённой недели филиала.
// Утверждение допустимо только в первый день текущей недели и только один раз на неделю.
func (s *Service) ApproveWeek(ctx context.Context, branchID, branchName string, actorID int64, now time.Time) (*ApprovalResult, error) {
	if strings.TrimSpace(branchID) == "" {
		return nil, ErrBranchRequired
	}

	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	now = now.In(s.loc)
	current := bonus.ComputeWeekWindow(now)

	week, err := bonus.WeekDateRange(current.Year, current.Month, current.WeekNumber, s.loc)
	if err != nil {
		return nil, err
	}
	if now.Day() != week.StartDay {
		return nil, ErrNotApprovalDay
	}

	target := bonus.PreviousWindow(current)
	key := target.Key(branchID)

	_, err = s.repo.GetApprovalByKey(ctx, key)
	switch {
	case err == nil:
		return nil, repository.ErrApprovalExists
	case errors.Is(err, repository.ErrApprovalNotFound):
	default:
		return nil, fmt.Errorf("get approval: %w", err)
	}

	records, err := s.windowRevenues(ctx, branchID, target)
	if err != nil {
		return nil, err
	}

	summary := bonus.Summarize(target, records)
	approval := &model.BonusApproval{
		BranchID:        branchID,
		BranchName:      branchName,
		Year:            target.Year,
		Month:           target.Month,
		WeekNumber:      target.WeekNumber,
		WeekLabel:       target.Label,
		StartDate:       target.Start,
		EndDate:         target.End,
		EmployeeBonuses: summary.EmployeeBonuses,
		TotalBonusPaid:  summary.TotalBonusPaid,
		RevenueSnapshot: bonus.RevenueSnapshot(records),
		ApprovedBy:      actor.ID,
		ApprovedByLogin: actor.Login,
		ApprovedAt:      now,
	}

	revenueIDs := make([]int64, 0, len(records))
	for _, r := range records {
		revenueIDs = append(revenueIDs, r.ID)
	}

	event := &model.ApprovalEvent{EventID: uuid.NewString()}

	id, err := s.repo.InsertApproval(ctx, approval, revenueIDs, event)
	if err != nil {
		return nil, err
	}

	s.logger.Info("bonus week approved",
		zap.Int64("approvalID", id),
		zap.String("branchID", branchID),
		zap.Int("year", target.Year),
		zap.Int("month", target.Month),
		zap.Int("week", target.WeekNumber),
		zap.Int("revenues", len(revenueIDs)),
		zap.String("totalBonusPaid", summary.TotalBonusPaid.String()),
		zap.Int64("approvedBy", actor.ID),
	)

	return &ApprovalResult{
		ApprovalID:     id,
		Window:         target,
		TotalBonusPaid: summary.TotalBonusPaid,
	}, nil
}

// GetApproval возвращает утверждение по идентификатору.
func (s *Service) GetApproval(ctx context.Context, id int64) (*model.BonusApproval, error) {
	return s.repo.GetApprovalByID(ctx, id)
}

// ListApprovals возвращает историю утверждений филиала.
func (s *Service) ListApprovals(ctx context.Context, branchID string) ([]model.BonusApproval, error) {
	if strings.TrimSpace(branchID) == "" {
		return nil, ErrBranchRequired
	}
	return s.repo.ListApprovalsByBranch(ctx, branchID)
}

// VerifyApproval загружает утверждение и сверяет его с текущими данными выручки.
func (s *Service) VerifyApproval(ctx context.Context, id int64) (*Verification, error) {
	a, err := s.repo.GetApprovalByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Verify(ctx, a)
}

// Verify пересчитывает итоги сотрудников по текущей выручке периода утверждения
// и возвращает расхождения с сохранённым слепком. Данные не изменяются.
func (s *Service) Verify(ctx context.Context, a *model.BonusApproval) (*Verification, error) {
	records, err := s.repo.GetRevenuesByBranchAndDateRange(ctx, a.BranchID, a.StartDate, a.EndDate)
	if err != nil {
		return nil, fmt.Errorf("get approval revenues: %w", err)
	}

	diffs := bonus.Reconcile(a.EmployeeBonuses, bonus.AggregateEmployeeRevenue(records))
	if len(diffs) > 0 {
		s.logger.Warn("bonus approval drift detected",
			zap.Int64("approvalID", a.ID),
			zap.String("branchID", a.BranchID),
			zap.Int("discrepancies", len(diffs)),
		)
	}

	return &Verification{
		IsValid:       len(diffs) == 0,
		Discrepancies: diffs,
	}, nil
}
