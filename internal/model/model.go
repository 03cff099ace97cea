// Package model содержит доменные сущности сервиса бонусов филиалов.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User представляет сотрудника бэк-офиса, выполняющего операции в системе.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// EmployeeRevenue описывает вклад одного сотрудника в дневную выручку.
type EmployeeRevenue struct {
	Name    string          `json:"name"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Revenue описывает дневную запись о выручке филиала.
type Revenue struct {
	ID                 int64
	Date               time.Time
	BranchID           string
	BranchName         string
	Cash               decimal.Decimal
	Network            decimal.Decimal
	Budget             decimal.Decimal
	Total              decimal.Decimal
	Employees          []EmployeeRevenue
	IsMatched          bool
	MismatchReason     string
	IsApprovedForBonus bool
	UserID             int64
	CreatedAt          time.Time
}

// WeekKey является естественным ключом бонусной недели.
type WeekKey struct {
	BranchID   string
	Year       int
	Month      int
	WeekNumber int
}

// EmployeeBonus содержит итог сотрудника за неделю и начисленный бонус.
type EmployeeBonus struct {
	EmployeeName string          `json:"employeeName"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	BonusAmount  decimal.Decimal `json:"bonusAmount"`
	IsEligible   bool            `json:"isEligible"`
}

// SnapshotLine описывает одну исходную строку выручки, попавшую в утверждение.
type SnapshotLine struct {
	Date         time.Time       `json:"date"`
	EmployeeName string          `json:"employeeName"`
	Revenue      decimal.Decimal `json:"revenue"`
}

// BonusApproval представляет неизменяемую запись об утверждении бонусов за неделю.
type BonusApproval struct {
	ID              int64
	BranchID        string
	BranchName      string
	Year            int
	Month           int
	WeekNumber      int
	WeekLabel       string
	StartDate       time.Time
	EndDate         time.Time
	EmployeeBonuses []EmployeeBonus
	TotalBonusPaid  decimal.Decimal
	RevenueSnapshot []SnapshotLine
	ApprovedBy      int64
	ApprovedByLogin string
	ApprovedAt      time.Time
}

// Key возвращает естественный ключ утверждения.
func (a *BonusApproval) Key() WeekKey {
	return WeekKey{
		BranchID:   a.BranchID,
		Year:       a.Year,
		Month:      a.Month,
		WeekNumber: a.WeekNumber,
	}
}

// Discrepancy описывает расхождение сохранённого итога сотрудника с текущими данными.
type Discrepancy struct {
	EmployeeName string          `json:"employeeName"`
	Saved        decimal.Decimal `json:"saved"`
	Current      decimal.Decimal `json:"current"`
}

// ApprovalEvent описывает событие об утверждении, ожидающее доставки во внешнюю систему.
type ApprovalEvent struct {
	ID             int64
	EventID        string
	ApprovalID     int64
	BranchID       string
	BranchName     string
	Year           int
	Month          int
	WeekNumber     int
	TotalBonusPaid decimal.Decimal
	ApprovedAt     time.Time
	Attempts       int
	DeliveredAt    *time.Time
	CreatedAt      time.Time
}
