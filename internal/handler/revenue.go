package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-ledger/internal/model"
)

const dateLayout = "2006-01-02"

type employeeRevenueRequest struct {
	Name    string          `json:"name" validate:"required,max=128"`
	Revenue decimal.Decimal `json:"revenue"`
}

type revenueRequest struct {
	Date           string                   `json:"date" validate:"required,datetime=2006-01-02"`
	BranchID       string                   `json:"branchId" validate:"required,max=64"`
	BranchName     string                   `json:"branchName" validate:"max=256"`
	Cash           decimal.Decimal          `json:"cash"`
	Network        decimal.Decimal          `json:"network"`
	Budget         decimal.Decimal          `json:"budget"`
	Employees      []employeeRevenueRequest `json:"employees" validate:"dive"`
	MismatchReason string                   `json:"mismatchReason" validate:"max=1024"`
}

type revenueResponse struct {
	ID                 int64                   `json:"id"`
	Date               string                  `json:"date"`
	BranchID           string                  `json:"branchId"`
	BranchName         string                  `json:"branchName"`
	Cash               decimal.Decimal         `json:"cash"`
	Network            decimal.Decimal         `json:"network"`
	Budget             decimal.Decimal         `json:"budget"`
	Total              decimal.Decimal         `json:"total"`
	Employees          []model.EmployeeRevenue `json:"employees"`
	IsMatched          bool                    `json:"isMatched"`
	MismatchReason     string                  `json:"mismatchReason,omitempty"`
	IsApprovedForBonus bool                    `json:"isApprovedForBonus"`
}

func (h *Handler) toRevenueResponse(r model.Revenue) revenueResponse {
	employees := r.Employees
	if employees == nil {
		employees = []model.EmployeeRevenue{}
	}
	return revenueResponse{
		ID:                 r.ID,
		Date:               r.Date.In(h.service.Location()).Format(dateLayout),
		BranchID:           r.BranchID,
		BranchName:         r.BranchName,
		Cash:               r.Cash,
		Network:            r.Network,
		Budget:             r.Budget,
		Total:              r.Total,
		Employees:          employees,
		IsMatched:          r.IsMatched,
		MismatchReason:     r.MismatchReason,
		IsApprovedForBonus: r.IsApprovedForBonus,
	}
}

func (h *Handler) parseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, h.service.Location())
	if err != nil {
		return time.Time{}, errInvalidDate
	}
	return d, nil
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// CreateRevenue принимает дневную запись выручки филиала.
func (h *Handler) CreateRevenue(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, err, "create revenue auth error")
		return
	}

	var req revenueRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, err, "create revenue decode error")
		return
	}

	date, err := h.parseDate(req.Date)
	if err != nil {
		h.fail(w, err, "create revenue date error")
		return
	}

	employees := make([]model.EmployeeRevenue, 0, len(req.Employees))
	for _, e := range req.Employees {
		employees = append(employees, model.EmployeeRevenue{Name: e.Name, Revenue: e.Revenue})
	}

	rev, err := h.service.CreateRevenue(r.Context(), userID, model.Revenue{
		Date:           date,
		BranchID:       req.BranchID,
		BranchName:     req.BranchName,
		Cash:           req.Cash,
		Network:        req.Network,
		Budget:         req.Budget,
		Employees:      employees,
		MismatchReason: req.MismatchReason,
	})
	if err != nil {
		h.fail(w, err, "create revenue error", zap.Int64("userID", userID), zap.String("branchID", req.BranchID))
		return
	}

	h.writeJSON(w, http.StatusCreated, h.toRevenueResponse(*rev))
}

// ListRevenues возвращает выручку филиала за период; по умолчанию за текущий месяц.
func (h *Handler) ListRevenues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	branchID := q.Get("branchId")

	now := h.now().In(h.service.Location())
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 1, 0).Add(-time.Millisecond)

	if v := q.Get("from"); v != "" {
		d, err := h.parseDate(v)
		if err != nil {
			h.fail(w, err, "list revenues date error")
			return
		}
		from = d
	}
	if v := q.Get("to"); v != "" {
		d, err := h.parseDate(v)
		if err != nil {
			h.fail(w, err, "list revenues date error")
			return
		}
		to = d.AddDate(0, 0, 1).Add(-time.Millisecond)
	}

	revenues, err := h.service.ListRevenues(r.Context(), branchID, from, to)
	if err != nil {
		h.fail(w, err, "list revenues error", zap.String("branchID", branchID))
		return
	}

	resp := make([]revenueResponse, 0, len(revenues))
	for _, rev := range revenues {
		resp = append(resp, h.toRevenueResponse(rev))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// DeleteRevenue удаляет запись выручки, ещё не учтённую в утверждённых бонусах.
func (h *Handler) DeleteRevenue(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.fail(w, err, "delete revenue id error")
		return
	}

	if err := h.service.DeleteRevenue(r.Context(), id); err != nil {
		h.fail(w, err, "delete revenue error", zap.Int64("revenueID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
