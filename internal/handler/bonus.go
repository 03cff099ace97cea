package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-ledger/internal/bonus"
	"github.com/mmeshcher/bonus-ledger/internal/model"
)

type weekSummaryResponse struct {
	Year            int                   `json:"year"`
	Month           int                   `json:"month"`
	WeekNumber      int                   `json:"weekNumber"`
	WeekLabel       string                `json:"weekLabel"`
	StartDate       string                `json:"startDate,omitempty"`
	EndDate         string                `json:"endDate,omitempty"`
	EmployeeBonuses []model.EmployeeBonus `json:"employeeBonuses"`
	TotalBonusPaid  decimal.Decimal       `json:"totalBonusPaid"`
}

type previewResponse struct {
	BranchID          string              `json:"branchId"`
	Current           weekSummaryResponse `json:"current"`
	Pending           weekSummaryResponse `json:"pending"`
	IsAlreadyApproved bool                `json:"isAlreadyApproved"`
	ApprovedAt        *time.Time          `json:"approvedAt,omitempty"`
	CanApprove        bool                `json:"canApprove"`
}

type approveRequest struct {
	BranchID   string `json:"branchId" validate:"required,max=64"`
	BranchName string `json:"branchName" validate:"max=256"`
}

type approveResponse struct {
	ApprovalID     int64           `json:"approvalId"`
	TotalBonusPaid decimal.Decimal `json:"totalBonusPaid"`
	WeekLabel      string          `json:"weekLabel"`
}

type approvalResponse struct {
	ID              int64                 `json:"id"`
	BranchID        string                `json:"branchId"`
	BranchName      string                `json:"branchName"`
	Year            int                   `json:"year"`
	Month           int                   `json:"month"`
	WeekNumber      int                   `json:"weekNumber"`
	WeekLabel       string                `json:"weekLabel"`
	StartDate       string                `json:"startDate"`
	EndDate         string                `json:"endDate"`
	EmployeeBonuses []model.EmployeeBonus `json:"employeeBonuses"`
	TotalBonusPaid  decimal.Decimal       `json:"totalBonusPaid"`
	RevenueSnapshot []model.SnapshotLine  `json:"revenueSnapshot"`
	ApprovedBy      int64                 `json:"approvedBy"`
	ApprovedByLogin string                `json:"approvedByLogin"`
	ApprovedAt      time.Time             `json:"approvedAt"`
}

type verifyResponse struct {
	IsValid       bool                `json:"isValid"`
	Discrepancies []model.Discrepancy `json:"discrepancies"`
	Message       string              `json:"message"`
}

func (h *Handler) toWeekSummary(s bonus.Summary) weekSummaryResponse {
	resp := weekSummaryResponse{
		Year:            s.Window.Year,
		Month:           s.Window.Month,
		WeekNumber:      s.Window.WeekNumber,
		WeekLabel:       s.Window.Label,
		EmployeeBonuses: s.EmployeeBonuses,
		TotalBonusPaid:  s.TotalBonusPaid,
	}
	if resp.EmployeeBonuses == nil {
		resp.EmployeeBonuses = []model.EmployeeBonus{}
	}
	if !s.Window.Empty() {
		resp.StartDate = s.Window.Start.Format(dateLayout)
		resp.EndDate = s.Window.End.Format(dateLayout)
	}
	return resp
}

func (h *Handler) toApprovalResponse(a model.BonusApproval) approvalResponse {
	loc := h.service.Location()
	resp := approvalResponse{
		ID:              a.ID,
		BranchID:        a.BranchID,
		BranchName:      a.BranchName,
		Year:            a.Year,
		Month:           a.Month,
		WeekNumber:      a.WeekNumber,
		WeekLabel:       a.WeekLabel,
		EmployeeBonuses: a.EmployeeBonuses,
		TotalBonusPaid:  a.TotalBonusPaid,
		RevenueSnapshot: a.RevenueSnapshot,
		ApprovedBy:      a.ApprovedBy,
		ApprovedByLogin: a.ApprovedByLogin,
		ApprovedAt:      a.ApprovedAt,
	}
	if !a.StartDate.IsZero() {
		resp.StartDate = a.StartDate.In(loc).Format(dateLayout)
		resp.EndDate = a.EndDate.In(loc).Format(dateLayout)
	}
	if resp.EmployeeBonuses == nil {
		resp.EmployeeBonuses = []model.EmployeeBonus{}
	}
	if resp.RevenueSnapshot == nil {
		resp.RevenueSnapshot = []model.SnapshotLine{}
	}
	return resp
}

// CurrentWeek возвращает предварительный расчёт бонусов филиала.
func (h *Handler) CurrentWeek(w http.ResponseWriter, r *http.Request) {
	branchID := r.URL.Query().Get("branchId")

	p, err := h.service.PreviewCurrentWeek(r.Context(), branchID, h.now())
	if err != nil {
		h.fail(w, err, "preview bonus error", zap.String("branchID", branchID))
		return
	}

	h.writeJSON(w, http.StatusOK, previewResponse{
		BranchID:          branchID,
		Current:           h.toWeekSummary(p.Current),
		Pending:           h.toWeekSummary(p.Pending),
		IsAlreadyApproved: p.IsAlreadyApproved,
		ApprovedAt:        p.ApprovedAt,
		CanApprove:        p.CanApprove,
	})
}

// Approve утверждает бонусы завершённой недели от имени текущего пользователя.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, err, "approve auth error")
		return
	}

	var req approveRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, err, "approve decode error")
		return
	}

	res, err := h.service.ApproveWeek(r.Context(), req.BranchID, req.BranchName, userID, h.now())
	if err != nil {
		h.fail(w, err, "approve bonus error", zap.String("branchID", req.BranchID), zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, approveResponse{
		ApprovalID:     res.ApprovalID,
		TotalBonusPaid: res.TotalBonusPaid,
		WeekLabel:      res.Window.Label,
	})
}

// ListRecords возвращает историю утверждений филиала, начиная с последнего.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	branchID := r.URL.Query().Get("branchId")

	records, err := h.service.ListApprovals(r.Context(), branchID)
	if err != nil {
		h.fail(w, err, "list approvals error", zap.String("branchID", branchID))
		return
	}

	resp := make([]approvalResponse, 0, len(records))
	for _, a := range records {
		resp = append(resp, h.toApprovalResponse(a))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetRecord возвращает одно утверждение.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, err, "get approval id error")
		return
	}

	a, err := h.service.GetApproval(r.Context(), id)
	if err != nil {
		h.fail(w, err, "get approval error", zap.Int64("approvalID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, h.toApprovalResponse(*a))
}

// VerifyRecord сверяет утверждение с текущими данными выручки.
func (h *Handler) VerifyRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, err, "verify approval id error")
		return
	}

	v, err := h.service.VerifyApproval(r.Context(), id)
	if err != nil {
		h.fail(w, err, "verify approval error", zap.Int64("approvalID", id))
		return
	}

	resp := verifyResponse{
		IsValid:       v.IsValid,
		Discrepancies: v.Discrepancies,
		Message:       "approval matches current revenue",
	}
	if resp.Discrepancies == nil {
		resp.Discrepancies = []model.Discrepancy{}
	}
	if !v.IsValid {
		resp.Message = "revenue changed after approval"
	}

	h.writeJSON(w, http.StatusOK, resp)
}
