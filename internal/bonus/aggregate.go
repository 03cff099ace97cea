package bonus

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bonus-ledger/internal/model"
)

// AggregateEmployeeRevenue суммирует выручку сотрудников по всем записям.
// Ключом служит имя сотрудника в том виде, в каком оно записано в выручке.
func AggregateEmployeeRevenue(records []model.Revenue) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, r := range records {
		for _, e := range r.Employees {
			cur, ok := totals[e.Name]
			if !ok {
				cur = decimal.Zero
			}
			totals[e.Name] = cur.Add(e.Revenue)
		}
	}
	return totals
}

// EmployeeBonuses применяет тарифную сетку к итогам и возвращает их в порядке имён.
func EmployeeBonuses(totals map[string]decimal.Decimal) []model.EmployeeBonus {
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	res := make([]model.EmployeeBonus, 0, len(names))
	for _, name := range names {
		award := ForRevenue(totals[name])
		res = append(res, model.EmployeeBonus{
			EmployeeName: name,
			TotalRevenue: totals[name],
			BonusAmount:  award.Amount,
			IsEligible:   award.IsEligible,
		})
	}
	return res
}

// TotalBonusPaid возвращает сумму всех бонусов.
func TotalBonusPaid(bonuses []model.EmployeeBonus) decimal.Decimal {
	total := decimal.Zero
	for _, b := range bonuses {
		total = total.Add(b.BonusAmount)
	}
	return total
}

// Summary содержит рассчитанные бонусы недели.
type Summary struct {
	Window          Window
	EmployeeBonuses []model.EmployeeBonus
	TotalBonusPaid  decimal.Decimal
}

// Summarize считает бонусы окна w по записям выручки records.
func Summarize(w Window, records []model.Revenue) Summary {
	bonuses := EmployeeBonuses(AggregateEmployeeRevenue(records))
	return Summary{
		Window:          w,
		EmployeeBonuses: bonuses,
		TotalBonusPaid:  TotalBonusPaid(bonuses),
	}
}

// RevenueSnapshot разворачивает записи выручки в построчный слепок без агрегации.
// Строки упорядочены по дате, затем по идентификатору записи, затем по порядку сотрудников.
func RevenueSnapshot(records []model.Revenue) []model.SnapshotLine {
	sorted := make([]model.Revenue, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var lines []model.SnapshotLine
	for _, r := range sorted {
		for _, e := range r.Employees {
			lines = append(lines, model.SnapshotLine{
				Date:         r.Date,
				EmployeeName: e.Name,
				Revenue:      e.Revenue,
			})
		}
	}
	return lines
}

// Reconcile сравнивает сохранённые итоги сотрудников с текущими.
// Сотрудник, отсутствующий в текущих данных, считается с нулевой выручкой.
func Reconcile(saved []model.EmployeeBonus, current map[string]decimal.Decimal) []model.Discrepancy {
	var res []model.Discrepancy
	for _, b := range saved {
		cur, ok := current[b.EmployeeName]
		if !ok {
			cur = decimal.Zero
		}
		if !cur.Equal(b.TotalRevenue) {
			res = append(res, model.Discrepancy{
				EmployeeName: b.EmployeeName,
				Saved:        b.TotalRevenue,
				Current:      cur,
			})
		}
	}
	return res
}
