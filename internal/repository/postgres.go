package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bonus-ledger/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return r.getUser(ctx, `SELECT id, login, password_hash, created_at FROM users WHERE login = $1`, login)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getUser(ctx, `SELECT id, login, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) getUser(ctx context.Context, query string, arg any) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CreateRevenue сохраняет дневную запись выручки.
func (r *PostgresRepository) CreateRevenue(ctx context.Context, rev *model.Revenue) (int64, error) {
	employees, err := json.Marshal(nonNilEmployees(rev.Employees))
	if err != nil {
		return 0, fmt.Errorf("marshal employees: %w", err)
	}

	var userID *int64
	if rev.UserID != 0 {
		userID = &rev.UserID
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO revenues (date, branch_id, branch_name, cash, network, budget, total,
		                       employees, is_matched, mismatch_reason, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		rev.Date, rev.BranchID, rev.BranchName,
		rev.Cash.String(), rev.Network.String(), rev.Budget.String(), rev.Total.String(),
		employees, rev.IsMatched, rev.MismatchReason, userID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert revenue: %w", err)
	}
	return id, nil
}

const revenueColumns = `id, date, branch_id, branch_name, cash::text, network::text, budget::text, total::text,
	employees, is_matched, mismatch_reason, is_approved_for_bonus, COALESCE(user_id, 0), created_at`

func scanRevenue(row pgx.Row) (model.Revenue, error) {
	var (
		rev                          model.Revenue
		cash, network, budget, total string
		employees                    []byte
	)

	err := row.Scan(&rev.ID, &rev.Date, &rev.BranchID, &rev.BranchName,
		&cash, &network, &budget, &total,
		&employees, &rev.IsMatched, &rev.MismatchReason, &rev.IsApprovedForBonus, &rev.UserID, &rev.CreatedAt)
	if err != nil {
		return rev, err
	}

	if rev.Cash, err = decimal.NewFromString(cash); err != nil {
		return rev, fmt.Errorf("parse cash: %w", err)
	}
	if rev.Network, err = decimal.NewFromString(network); err != nil {
		return rev, fmt.Errorf("parse network: %w", err)
	}
	if rev.Budget, err = decimal.NewFromString(budget); err != nil {
		return rev, fmt.Errorf("parse budget: %w", err)
	}
	if rev.Total, err = decimal.NewFromString(total); err != nil {
		return rev, fmt.Errorf("parse total: %w", err)
	}
	if err := json.Unmarshal(employees, &rev.Employees); err != nil {
		return rev, fmt.Errorf("unmarshal employees: %w", err)
	}

	return rev, nil
}

// GetRevenue возвращает запись выручки по идентификатору.
func (r *PostgresRepository) GetRevenue(ctx context.Context, id int64) (*model.Revenue, error) {
	rev, err := scanRevenue(r.pool.QueryRow(ctx,
		`SELECT `+revenueColumns+` FROM revenues WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRevenueNotFound
		}
		return nil, fmt.Errorf("get revenue: %w", err)
	}
	return &rev, nil
}

// GetRevenuesByBranchAndDateRange возвращает выручку филиала за период [from, to] включительно.
func (r *PostgresRepository) GetRevenuesByBranchAndDateRange(ctx context.Context, branchID string, from, to time.Time) ([]model.Revenue, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+revenueColumns+`
		 FROM revenues
		 WHERE branch_id = $1 AND date >= $2 AND date <= $3
		 ORDER BY date, id`,
		branchID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select revenues: %w", err)
	}
	defer rows.Close()

	var res []model.Revenue
	for rows.Next() {
		rev, err := scanRevenue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revenue: %w", err)
		}
		res = append(res, rev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkApprovedForBonus помечает записи выручки как учтённые в утверждённых бонусах. Повторный вызов безопасен.
func (r *PostgresRepository) MarkApprovedForBonus(ctx context.Context, ids ...int64) error {
	return r.withRetry(ctx, func() error {
		return markApprovedForBonus(ctx, r.pool, ids)
	})
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func markApprovedForBonus(ctx context.Context, q execer, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx,
		`UPDATE revenues SET is_approved_for_bonus = TRUE WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("mark revenues approved: %w", err)
	}
	return nil
}

// DeleteRevenue удаляет запись выручки, если она ещё не учтена в утверждённых бонусах.
func (r *PostgresRepository) DeleteRevenue(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var approved bool
	err = tx.QueryRow(ctx,
		`SELECT is_approved_for_bonus FROM revenues WHERE id = $1 FOR UPDATE`, id,
	).Scan(&approved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRevenueNotFound
		}
		return fmt.Errorf("lock revenue: %w", err)
	}

	if approved {
		return ErrRevenueLocked
	}

	if _, err := tx.Exec(ctx, `DELETE FROM revenues WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete revenue: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

const approvalColumns = `id, branch_id, branch_name, year, month, week_number, week_label, start_date, end_date,
	employee_bonuses, total_bonus_paid::text, revenue_snapshot, COALESCE(approved_by, 0), approved_by_login, approved_at`

func scanApproval(row pgx.Row) (model.BonusApproval, error) {
	var (
		a                 model.BonusApproval
		bonuses, snapshot []byte
		totalBonusPaid    string
	)

	err := row.Scan(&a.ID, &a.BranchID, &a.BranchName, &a.Year, &a.Month, &a.WeekNumber, &a.WeekLabel,
		&a.StartDate, &a.EndDate, &bonuses, &totalBonusPaid, &snapshot, &a.ApprovedBy, &a.ApprovedByLogin, &a.ApprovedAt)
	if err != nil {
		return a, err
	}

	if a.TotalBonusPaid, err = decimal.NewFromString(totalBonusPaid); err != nil {
		return a, fmt.Errorf("parse total bonus: %w", err)
	}
	if err := json.Unmarshal(bonuses, &a.EmployeeBonuses); err != nil {
		return a, fmt.Errorf("unmarshal employee bonuses: %w", err)
	}
	if err := json.Unmarshal(snapshot, &a.RevenueSnapshot); err != nil {
		return a, fmt.Errorf("unmarshal revenue snapshot: %w", err)
	}

	return a, nil
}

// GetApprovalByKey возвращает утверждение бонусов по ключу недели.
func (r *PostgresRepository) GetApprovalByKey(ctx context.Context, key model.WeekKey) (*model.BonusApproval, error) {
	a, err := scanApproval(r.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+`
		 FROM bonus_approvals
		 WHERE branch_id = $1 AND year = $2 AND month = $3 AND week_number = $4`,
		key.BranchID, key.Year, key.Month, key.WeekNumber,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApprovalNotFound
		}
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return &a, nil
}

// GetApprovalByID возвращает утверждение бонусов по идентификатору.
func (r *PostgresRepository) GetApprovalByID(ctx context.Context, id int64) (*model.BonusApproval, error) {
	a, err := scanApproval(r.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM bonus_approvals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApprovalNotFound
		}
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return &a, nil
}

// ListApprovalsByBranch возвращает историю утверждений филиала, начиная с последних.
func (r *PostgresRepository) ListApprovalsByBranch(ctx context.Context, branchID string) ([]model.BonusApproval, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+approvalColumns+`
		 FROM bonus_approvals
		 WHERE branch_id = $1
		 ORDER BY approved_at DESC, id DESC`,
		branchID,
	)
	if err != nil {
		return nil, fmt.Errorf("select approvals: %w", err)
	}
	defer rows.Close()

	var res []model.BonusApproval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// InsertApproval в одной транзакции сохраняет утверждение, помечает учтённую выручку
// и ставит событие в очередь на доставку. Уникальный индекс по ключу недели
// не допускает второго утверждения той же недели.
func (r *PostgresRepository) InsertApproval(ctx context.Context, a *model.BonusApproval, revenueIDs []int64, event *model.ApprovalEvent) (int64, error) {
	bonuses, err := json.Marshal(nonNilBonuses(a.EmployeeBonuses))
	if err != nil {
		return 0, fmt.Errorf("marshal employee bonuses: %w", err)
	}
	snapshot, err := json.Marshal(nonNilSnapshot(a.RevenueSnapshot))
	if err != nil {
		return 0, fmt.Errorf("marshal revenue snapshot: %w", err)
	}

	var approvedBy *int64
	if a.ApprovedBy != 0 {
		approvedBy = &a.ApprovedBy
	}

	var id int64
	err = r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO bonus_approvals (branch_id, branch_name, year, month, week_number, week_label,
			                              start_date, end_date, employee_bonuses, total_bonus_paid,
			                              revenue_snapshot, approved_by, approved_by_login, approved_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 ON CONFLICT ON CONSTRAINT bonus_approvals_week_key DO NOTHING
			 RETURNING id`,
			a.BranchID, a.BranchName, a.Year, a.Month, a.WeekNumber, a.WeekLabel,
			a.StartDate, a.EndDate, bonuses, a.TotalBonusPaid.String(),
			snapshot, approvedBy, a.ApprovedByLogin, a.ApprovedAt,
		).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
				return ErrApprovalExists
			}
			return fmt.Errorf("insert approval: %w", err)
		}

		if err := markApprovedForBonus(ctx, tx, revenueIDs); err != nil {
			return err
		}

		if event != nil {
			_, err = tx.Exec(ctx,
				`INSERT INTO approval_events (event_id, approval_id, created_at) VALUES ($1, $2, $3)`,
				event.EventID, id, a.ApprovedAt,
			)
			if err != nil {
				return fmt.Errorf("insert approval event: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	a.ID = id
	if event != nil {
		event.ApprovalID = id
	}
	return id, nil
}

// GetPendingEvents возвращает недоставленные события об утверждениях в порядке создания.
func (r *PostgresRepository) GetPendingEvents(ctx context.Context, limit int) ([]model.ApprovalEvent, error) {
	if limit <= 0 {
		limit = defaultEventsLimit
	}

	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.event_id::text, e.approval_id, a.branch_id, a.branch_name, a.year, a.month,
		        a.week_number, a.total_bonus_paid::text, a.approved_at, e.attempts, e.created_at
		 FROM approval_events e
		 JOIN bonus_approvals a ON a.id = e.approval_id
		 WHERE e.delivered_at IS NULL
		 ORDER BY e.created_at, e.id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending events: %w", err)
	}
	defer rows.Close()

	var res []model.ApprovalEvent
	for rows.Next() {
		var (
			e     model.ApprovalEvent
			total string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.ApprovalID, &e.BranchID, &e.BranchName, &e.Year, &e.Month,
			&e.WeekNumber, &total, &e.ApprovedAt, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.TotalBonusPaid, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total bonus: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkEventDelivered отмечает событие как доставленное.
func (r *PostgresRepository) MarkEventDelivered(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE approval_events SET delivered_at = $2, attempts = attempts + 1 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("mark event delivered: %w", err)
	}
	return nil
}

// MarkEventFailed увеличивает счётчик неудачных попыток доставки события.
func (r *PostgresRepository) MarkEventFailed(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE approval_events SET attempts = attempts + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}

func nonNilEmployees(v []model.EmployeeRevenue) []model.EmployeeRevenue {
	if v == nil {
		return []model.EmployeeRevenue{}
	}
	return v
}

func nonNilBonuses(v []model.EmployeeBonus) []model.EmployeeBonus {
	if v == nil {
		return []model.EmployeeBonus{}
	}
	return v
}

func nonNilSnapshot(v []model.SnapshotLine) []model.SnapshotLine {
	if v == nil {
		return []model.SnapshotLine{}
	}
	return v
}
