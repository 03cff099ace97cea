package bonus

import "github.com/shopspring/decimal"

// Tier задаёт порог недельной выручки и сумму бонуса за его достижение.
type Tier struct {
	Threshold decimal.Decimal
	Amount    decimal.Decimal
}

// Tiers отсортированы по убыванию порога.
var Tiers = []Tier{
	{Threshold: decimal.NewFromInt(2900), Amount: decimal.NewFromInt(240)},
	{Threshold: decimal.NewFromInt(2400), Amount: decimal.NewFromInt(175)},
	{Threshold: decimal.NewFromInt(1800), Amount: decimal.NewFromInt(100)},
	{Threshold: decimal.NewFromInt(1300), Amount: decimal.NewFromInt(50)},
}

// Award хранит результат применения тарифной сетки к недельной выручке.
type Award struct {
	Amount     decimal.Decimal
	IsEligible bool
}

// ForRevenue возвращает бонус за недельную выручку totalRevenue.
// Выручка, равная порогу, относится к этому порогу.
func ForRevenue(totalRevenue decimal.Decimal) Award {
	for _, t := range Tiers {
		if totalRevenue.GreaterThanOrEqual(t.Threshold) {
			return Award{Amount: t.Amount, IsEligible: true}
		}
	}
	return Award{Amount: decimal.Zero}
}
