package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/bonus-ledger/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется в тестах и при запуске без БД.
type MemoryRepository struct {
	mu sync.RWMutex

	nextID int64

	users     map[int64]model.User
	logins    map[string]int64
	revenues  map[int64]model.Revenue
	approvals map[int64]model.BonusApproval
	weekKeys  map[model.WeekKey]int64
	events    map[int64]model.ApprovalEvent
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[int64]model.User),
		logins:    make(map[string]int64),
		revenues:  make(map[int64]model.Revenue),
		approvals: make(map[int64]model.BonusApproval),
		weekKeys:  make(map[model.WeekKey]int64),
		events:    make(map[int64]model.ApprovalEvent),
	}
}

func (m *MemoryRepository) newID() int64 {
	m.nextID++
	return m.nextID
}

// Close ничего не освобождает.
func (m *MemoryRepository) Close() error {
	return nil
}

// CreateUser создаёт нового пользователя.
func (m *MemoryRepository) CreateUser(_ context.Context, login string, passwordHash []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.logins[login]; ok {
		return 0, ErrUserExists
	}

	id := m.newID()
	m.users[id] = model.User{
		ID:           id,
		Login:        login,
		PasswordHash: append([]byte(nil), passwordHash...),
		CreatedAt:    time.Now(),
	}
	m.logins[login] = id
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (m *MemoryRepository) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.logins[login]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := m.users[id]
	return &u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (m *MemoryRepository) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// CreateRevenue сохраняет дневную запись выручки.
func (m *MemoryRepository) CreateRevenue(_ context.Context, rev *model.Revenue) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := copyRevenue(*rev)
	stored.ID = m.newID()
	stored.IsApprovedForBonus = false
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.revenues[stored.ID] = stored
	return stored.ID, nil
}

// GetRevenue возвращает запись выручки по идентификатору.
func (m *MemoryRepository) GetRevenue(_ context.Context, id int64) (*model.Revenue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rev, ok := m.revenues[id]
	if !ok {
		return nil, ErrRevenueNotFound
	}
	res := copyRevenue(rev)
	return &res, nil
}

// UpdateRevenueEmployees заменяет распределение выручки по сотрудникам в обход проверок сервиса.
// Нужен для исправления исторических данных и для проверки сверки утверждений.
func (m *MemoryRepository) UpdateRevenueEmployees(_ context.Context, id int64, employees []model.EmployeeRevenue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rev, ok := m.revenues[id]
	if !ok {
		return ErrRevenueNotFound
	}
	rev.Employees = append([]model.EmployeeRevenue(nil), employees...)
	m.revenues[id] = rev
	return nil
}

// GetRevenuesByBranchAndDateRange возвращает выручку филиала за период [from, to] включительно.
func (m *MemoryRepository) GetRevenuesByBranchAndDateRange(_ context.Context, branchID string, from, to time.Time) ([]model.Revenue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []model.Revenue
	for _, rev := range m.revenues {
		if rev.BranchID != branchID || rev.Date.Before(from) || rev.Date.After(to) {
			continue
		}
		res = append(res, copyRevenue(rev))
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].Date.Equal(res[j].Date) {
			return res[i].Date.Before(res[j].Date)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

// MarkApprovedForBonus помечает записи выручки как учтённые в утверждённых бонусах. Повторный вызов безопасен.
func (m *MemoryRepository) MarkApprovedForBonus(_ context.Context, ids ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.markApprovedLocked(ids)
	return nil
}

func (m *MemoryRepository) markApprovedLocked(ids []int64) {
	for _, id := range ids {
		if rev, ok := m.revenues[id]; ok {
			rev.IsApprovedForBonus = true
			m.revenues[id] = rev
		}
	}
}

// DeleteRevenue удаляет запись выручки, если она ещё не учтена в утверждённых бонусах.
func (m *MemoryRepository) DeleteRevenue(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rev, ok := m.revenues[id]
	if !ok {
		return ErrRevenueNotFound
	}
	if rev.IsApprovedForBonus {
		return ErrRevenueLocked
	}
	delete(m.revenues, id)
	return nil
}

// GetApprovalByKey возвращает утверждение бонусов по ключу недели.
func (m *MemoryRepository) GetApprovalByKey(_ context.Context, key model.WeekKey) (*model.BonusApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.weekKeys[key]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	a := copyApproval(m.approvals[id])
	return &a, nil
}

// GetApprovalByID возвращает утверждение бонусов по идентификатору.
func (m *MemoryRepository) GetApprovalByID(_ context.Context, id int64) (*model.BonusApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.approvals[id]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	res := copyApproval(a)
	return &res, nil
}

// ListApprovalsByBranch возвращает историю утверждений филиала, начиная с последних.
func (m *MemoryRepository) ListApprovalsByBranch(_ context.Context, branchID string) ([]model.BonusApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []model.BonusApproval
	for _, a := range m.approvals {
		if a.BranchID == branchID {
			res = append(res, copyApproval(a))
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].ApprovedAt.Equal(res[j].ApprovedAt) {
			return res[i].ApprovedAt.After(res[j].ApprovedAt)
		}
		return res[i].ID > res[j].ID
	})
	return res, nil
}

// InsertApproval под одной блокировкой сохраняет утверждение, помечает учтённую выручку
// и ставит событие в очередь на доставку.
func (m *MemoryRepository) InsertApproval(_ context.Context, a *model.BonusApproval, revenueIDs []int64, event *model.ApprovalEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := a.Key()
	if _, ok := m.weekKeys[key]; ok {
		return 0, ErrApprovalExists
	}

	stored := copyApproval(*a)
	stored.ID = m.newID()
	m.approvals[stored.ID] = stored
	m.weekKeys[key] = stored.ID

	m.markApprovedLocked(revenueIDs)

	if event != nil {
		e := *event
		e.ID = m.newID()
		e.ApprovalID = stored.ID
		e.BranchID = stored.BranchID
		e.BranchName = stored.BranchName
		e.Year = stored.Year
		e.Month = stored.Month
		e.WeekNumber = stored.WeekNumber
		e.TotalBonusPaid = stored.TotalBonusPaid
		e.ApprovedAt = stored.ApprovedAt
		e.CreatedAt = stored.ApprovedAt
		m.events[e.ID] = e
		event.ApprovalID = stored.ID
	}

	a.ID = stored.ID
	return stored.ID, nil
}

// GetPendingEvents возвращает недоставленные события об утверждениях в порядке создания.
func (m *MemoryRepository) GetPendingEvents(_ context.Context, limit int) ([]model.ApprovalEvent, error) {
	if limit <= 0 {
		limit = defaultEventsLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []model.ApprovalEvent
	for _, e := range m.events {
		if e.DeliveredAt == nil {
			res = append(res, e)
		}
	}

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// MarkEventDelivered отмечает событие как доставленное.
func (m *MemoryRepository) MarkEventDelivered(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.events[id]; ok {
		e.Attempts++
		e.DeliveredAt = &at
		m.events[id] = e
	}
	return nil
}

// MarkEventFailed увеличивает счётчик неудачных попыток доставки события.
func (m *MemoryRepository) MarkEventFailed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.events[id]; ok {
		e.Attempts++
		m.events[id] = e
	}
	return nil
}

func copyRevenue(r model.Revenue) model.Revenue {
	r.Employees = append([]model.EmployeeRevenue(nil), r.Employees...)
	return r
}

func copyApproval(a model.BonusApproval) model.BonusApproval {
	a.EmployeeBonuses = append([]model.EmployeeBonus(nil), a.EmployeeBonuses...)
	a.RevenueSnapshot = append([]model.SnapshotLine(nil), a.RevenueSnapshot...)
	return a
}
