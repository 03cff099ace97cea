// Package bonus содержит расчёт бонусных недель, тарифную сетку и агрегацию выручки сотрудников.
package bonus

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/bonus-ledger/internal/model"
)

// WeeksPerMonth задаёт число бонусных недель в каждом месяце.
const WeeksPerMonth = 5

// ErrInvalidWeek возвращается для номера недели вне диапазона 1..5 или некорректного месяца.
var ErrInvalidWeek = errors.New("invalid week number")

var weekStartDays = [WeeksPerMonth]int{1, 8, 15, 22, 29}

// approvalDays перечисляет дни месяца, в которые предпросмотр разрешает утверждение.
var approvalDays = map[int]bool{8: true, 15: true, 22: true, 29: true}

// Window описывает бонусную неделю внутри календарного месяца.
type Window struct {
	Year       int
	Month      int
	WeekNumber int
	Label      string
	StartDay   int
	EndDay     int
	Start      time.Time
	End        time.Time
}

// Empty сообщает, что в окне нет ни одного календарного дня.
func (w Window) Empty() bool {
	return w.StartDay > w.EndDay
}

// Contains сообщает, попадает ли момент t в окно включительно.
func (w Window) Contains(t time.Time) bool {
	if w.Empty() {
		return false
	}
	return !t.Before(w.Start) && !t.After(w.End)
}

// Key возвращает ключ утверждения окна для филиала.
func (w Window) Key(branchID string) model.WeekKey {
	return model.WeekKey{
		BranchID:   branchID,
		Year:       w.Year,
		Month:      w.Month,
		WeekNumber: w.WeekNumber,
	}
}

// DaysInMonth возвращает число дней месяца с учётом високосных лет.
func DaysInMonth(year, month int) int {
	// нулевой день следующего месяца равен последнему дню текущего
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// WeekNumberForDay возвращает номер бонусной недели для дня месяца.
func WeekNumberForDay(day int) int {
	switch {
	case day <= 7:
		return 1
	case day <= 14:
		return 2
	case day <= 21:
		return 3
	case day <= 28:
		return 4
	default:
		return 5
	}
}

// WeekDateRange возвращает границы недели week месяца month года year в зоне loc.
// Start приходится на 00:00:00.000 первого дня, End на 23:59:59.999 последнего.
func WeekDateRange(year, month, week int, loc *time.Location) (Window, error) {
	if week < 1 || week > WeeksPerMonth {
		return Window{}, fmt.Errorf("%w: %d", ErrInvalidWeek, week)
	}
	if month < 1 || month > 12 {
		return Window{}, fmt.Errorf("%w: month %d", ErrInvalidWeek, month)
	}
	if loc == nil {
		loc = time.UTC
	}

	days := DaysInMonth(year, month)
	startDay := weekStartDays[week-1]
	endDay := startDay + 6
	if week == WeeksPerMonth {
		endDay = days
	}

	w := Window{
		Year:       year,
		Month:      month,
		WeekNumber: week,
		StartDay:   startDay,
		EndDay:     endDay,
		Label:      weekLabel(week, startDay, endDay),
	}

	if w.Empty() {
		return w, nil
	}

	w.Start = time.Date(year, time.Month(month), startDay, 0, 0, 0, 0, loc)
	w.End = time.Date(year, time.Month(month), endDay, 23, 59, 59, int(999*time.Millisecond), loc)

	return w, nil
}

// ComputeWeekWindow возвращает бонусную неделю, в которую попадает t, в зоне самого t.
func ComputeWeekWindow(t time.Time) Window {
	year, month, day := t.Date()
	w, _ := WeekDateRange(year, int(month), WeekNumberForDay(day), t.Location())
	return w
}

// PreviousWindow возвращает последнюю непустую неделю, закончившуюся до начала w.
// Пустая пятая неделя февраля пропускается.
func PreviousWindow(w Window) Window {
	year, month, week := w.Year, w.Month, w.WeekNumber
	loc := w.Start.Location()

	for {
		week--
		if week < 1 {
			week = WeeksPerMonth
			month--
			if month < 1 {
				month = 12
				year--
			}
		}

		prev, err := WeekDateRange(year, month, week, loc)
		if err == nil && !prev.Empty() {
			return prev
		}
	}
}

// IsApprovalDay сообщает, входит ли день месяца в набор дней утверждения {8, 15, 22, 29}.
func IsApprovalDay(day int) bool {
	return approvalDays[day]
}

func weekLabel(week, startDay, endDay int) string {
	if week == WeeksPerMonth {
		return fmt.Sprintf("remaining days (%d-%d)", startDay, endDay)
	}
	return fmt.Sprintf("week %d (%d-%d)", week, startDay, endDay)
}
