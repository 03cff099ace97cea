package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-ledger/internal/model"
	"github.com/mmeshcher/bonus-ledger/internal/notify"
)

const (
	dispatchInterval  = 1 * time.Second
	dispatchBatchSize = 100
)

// StartNotificationDispatch запускает фоновую доставку событий об утверждениях бонусов.
func (s *Service) StartNotificationDispatch(ctx context.Context) {
	if s.notifier == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(dispatchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processNotificationBatch(ctx)
			}
		}
	}()
}

// processNotificationBatch отправляет накопленные события по порядку.
// При ошибке доставки обработка пачки прекращается до следующего тика.
func (s *Service) processNotificationBatch(ctx context.Context) {
	events, err := s.repo.GetPendingEvents(ctx, dispatchBatchSize)
	if err != nil {
		s.logger.Warn("failed to load pending approval events", zap.Error(err))
		return
	}

	for _, e := range events {
		statusCode, retryAfter, err := s.notifier.SendApproval(ctx, noticeFromEvent(e))
		if err != nil {
			s.logger.Warn("failed to deliver approval event",
				zap.String("eventID", e.EventID),
				zap.Int("statusCode", statusCode),
				zap.Int("attempts", e.Attempts+1),
				zap.Error(err),
			)
			if markErr := s.repo.MarkEventFailed(ctx, e.ID); markErr != nil {
				s.logger.Error("failed to record delivery attempt", zap.Int64("eventID", e.ID), zap.Error(markErr))
			}
			return
		}

		if statusCode == http.StatusTooManyRequests {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			return
		}

		if err := s.repo.MarkEventDelivered(ctx, e.ID, time.Now()); err != nil {
			s.logger.Error("failed to mark approval event delivered", zap.Int64("eventID", e.ID), zap.Error(err))
			return
		}
	}
}

func noticeFromEvent(e model.ApprovalEvent) notify.ApprovalNotice {
	return notify.ApprovalNotice{
		EventID:        e.EventID,
		ApprovalID:     e.ApprovalID,
		BranchID:       e.BranchID,
		BranchName:     e.BranchName,
		Year:           e.Year,
		Month:          e.Month,
		WeekNumber:     e.WeekNumber,
		TotalBonusPaid: e.TotalBonusPaid,
		ApprovedAt:     e.ApprovedAt,
	}
}
