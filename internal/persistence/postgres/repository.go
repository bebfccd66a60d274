// Package postgres provides pgx-backed persistence for accounts and the
// metrics history ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/account/internal/domain"
	"example.com/account/internal/observability"
)

const uniqueViolation = "23505"

const accountColumns = `account_id, email, password_digest, display_name, height_cm, weight_kg, goal, activity_level, created_at`

// Repository provides Postgres-backed persistence for accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateAccount inserts the account. A unique-constraint violation on the
// email index is mapped to domain.ErrDuplicateEmail so a registration race
// between the existence check and the insert resolves to the duplicate
// response instead of a fatal error.
func (r *Repository) CreateAccount(ctx context.Context, account domain.Account) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO accounts (account_id, email, password_digest, display_name, height_cm, weight_kg, goal, activity_level, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		account.ID,
		account.Email,
		account.PasswordDigest,
		account.Name,
		account.Height,
		account.Weight,
		account.Goal,
		account.ActivityLevel,
		account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			err = fmt.Errorf("%w: %s", domain.ErrDuplicateEmail, account.Email)
		}
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordAccountRegistered(account.CreatedAt)
	return nil
}

// GetAccountByEmail fetches by normalized email. Absent accounts resolve to
// nil rather than an error.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email=$1`, email)
}

// GetAccountByID fetches by account id.
func (r *Repository) GetAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	return r.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id=$1`, accountID)
}

func (r *Repository) getAccount(ctx context.Context, query string, arg interface{}) (*domain.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, query, arg)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// UpdateAccountName overwrites the display name and returns the updated
// account, or nil when no account matched.
func (r *Repository) UpdateAccountName(ctx context.Context, accountID, name string) (*domain.Account, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `UPDATE accounts SET display_name=$2 WHERE account_id=$1 RETURNING ` + accountColumns

	row := tx.QueryRow(ctx, stmt, accountID, name)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return nil, commitErr
			}
			return nil, nil
		}
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return account, nil
}

// UpdateAccountMetrics applies a partial metrics update and its audit rows
// in one transaction. The stored row is read under FOR UPDATE, the
// change-tracking engine decides which history rows to append, and the
// state mutation follows; all of it commits or rolls back together. A
// missing account performs no writes and returns nil.
func (r *Repository) UpdateAccountMetrics(ctx context.Context, accountID string, update domain.MetricsUpdate, now time.Time) (*domain.Account, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id=$1 FOR UPDATE`, accountID)
	stored, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			tx.Rollback(ctx)
			return nil, nil
		}
		return nil, err
	}

	changes := domain.TrackMetricChanges(stored, update, now)
	for _, rec := range changes {
		if _, err = tx.Exec(ctx,
			`INSERT INTO metrics_history (account_id, field_name, old_value, new_value, changed_at) VALUES ($1,$2,$3,$4,$5)`,
			rec.AccountID, rec.Field, rec.OldValue, rec.NewValue, rec.ChangedAt,
		); err != nil {
			return nil, err
		}
	}

	update.Apply(stored)

	if _, err = tx.Exec(ctx,
		`UPDATE accounts SET height_cm=$2, weight_kg=$3, goal=$4, activity_level=$5 WHERE account_id=$1`,
		stored.ID, stored.Height, stored.Weight, stored.Goal, stored.ActivityLevel,
	); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	observability.RecordHistoryWritten(len(changes), now)
	return stored, nil
}

// ListMetricsHistory returns audit rows for the account, applying the
// optional field and inclusive date refinements, newest first.
func (r *Repository) ListMetricsHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.MetricsHistoryRecord, error) {
	query := `SELECT history_id, account_id, field_name, old_value, new_value, changed_at
        FROM metrics_history WHERE account_id=$1`
	args := []interface{}{filter.AccountID}

	if filter.Field != nil {
		args = append(args, *filter.Field)
		query += fmt.Sprintf(` AND field_name=$%d`, len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(` AND changed_at >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(` AND changed_at <= $%d`, len(args))
	}

	query += ` ORDER BY changed_at DESC`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.MetricsHistoryRecord
	for rows.Next() {
		var rec domain.MetricsHistoryRecord
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Field, &rec.OldValue, &rec.NewValue, &rec.ChangedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var acc domain.Account
	if err := row.Scan(&acc.ID, &acc.Email, &acc.PasswordDigest, &acc.Name, &acc.Height, &acc.Weight, &acc.Goal, &acc.ActivityLevel, &acc.CreatedAt); err != nil {
		return nil, err
	}
	return &acc, nil
}
