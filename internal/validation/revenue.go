// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bonus-ledger/internal/model"
)

var (
	// ErrInvalidRevenue возвращается для записи выручки с некорректными полями.
	ErrInvalidRevenue = errors.New("invalid revenue")
	// ErrMismatchReasonRequired возвращается, если запись не сходится, а причина не указана.
	ErrMismatchReasonRequired = errors.New("mismatch reason is required")
)

// RevenueCheck содержит результат сверки дневной выручки.
type RevenueCheck struct {
	Total          decimal.Decimal
	EmployeesTotal decimal.Decimal
	IsMatched      bool
}

// CheckRevenue проверяет поля записи выручки и вычисляет признак сходимости.
// Итог равен сумме наличных и безналичных; запись сходится, если выручка сотрудников
// даёт тот же итог, а бюджет равен безналичной части.
func CheckRevenue(r *model.Revenue) (RevenueCheck, error) {
	if strings.TrimSpace(r.BranchID) == "" {
		return RevenueCheck{}, fmt.Errorf("%w: branch id is empty", ErrInvalidRevenue)
	}
	if r.Date.IsZero() {
		return RevenueCheck{}, fmt.Errorf("%w: date is empty", ErrInvalidRevenue)
	}
	if r.Cash.IsNegative() || r.Network.IsNegative() || r.Budget.IsNegative() {
		return RevenueCheck{}, fmt.Errorf("%w: negative amount", ErrInvalidRevenue)
	}

	employeesTotal := decimal.Zero
	for i, e := range r.Employees {
		if strings.TrimSpace(e.Name) == "" {
			return RevenueCheck{}, fmt.Errorf("%w: employee %d has no name", ErrInvalidRevenue, i)
		}
		if e.Revenue.IsNegative() {
			return RevenueCheck{}, fmt.Errorf("%w: employee %q has negative revenue", ErrInvalidRevenue, e.Name)
		}
		employeesTotal = employeesTotal.Add(e.Revenue)
	}

	total := r.Cash.Add(r.Network)
	res := RevenueCheck{
		Total:          total,
		EmployeesTotal: employeesTotal,
		IsMatched:      employeesTotal.Equal(total) && r.Budget.Equal(r.Network),
	}

	if !res.IsMatched && strings.TrimSpace(r.MismatchReason) == "" {
		return res, ErrMismatchReasonRequired
	}

	return res, nil
}
