// Package memory stores accounts in memory for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/account/internal/domain"
)

// Repository is an in-memory domain.Repository. The mutex stands in for the
// storage transaction: each method's reads and writes are atomic with
// respect to every other call, mirroring the Postgres behaviour.
type Repository struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	byEmail  map[string]string
	history  []domain.MetricsHistoryRecord
	nextID   int64
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		accounts: make(map[string]*domain.Account),
		byEmail:  make(map[string]string),
	}
}

// CreateAccount implements domain.Repository. Duplicate emails map to
// domain.ErrDuplicateEmail, matching the storage unique constraint.
func (r *Repository) CreateAccount(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[account.Email]; exists {
		return domain.ErrDuplicateEmail
	}
	stored := account
	r.accounts[account.ID] = &stored
	r.byEmail[account.Email] = account.ID
	return nil
}

// GetAccountByEmail implements domain.Repository.
func (r *Repository) GetAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	return copyAccount(r.accounts[id]), nil
}

// GetAccountByID implements domain.Repository.
func (r *Repository) GetAccountByID(_ context.Context, accountID string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[accountID]
	if !ok {
		return nil, nil
	}
	return copyAccount(acc), nil
}

// UpdateAccountName implements domain.Repository.
func (r *Repository) UpdateAccountName(_ context.Context, accountID, name string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[accountID]
	if !ok {
		return nil, nil
	}
	acc.Name = name
	return copyAccount(acc), nil
}

// UpdateAccountMetrics implements domain.Repository using the same
// change-tracking engine as the Postgres repository.
func (r *Repository) UpdateAccountMetrics(_ context.Context, accountID string, update domain.MetricsUpdate, now time.Time) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[accountID]
	if !ok {
		return nil, nil
	}

	for _, rec := range domain.TrackMetricChanges(acc, update, now) {
		r.nextID++
		rec.ID = r.nextID
		r.history = append(r.history, rec)
	}
	update.Apply(acc)
	return copyAccount(acc), nil
}

// ListMetricsHistory implements domain.Repository, newest first.
func (r *Repository) ListMetricsHistory(_ context.Context, filter domain.HistoryFilter) ([]domain.MetricsHistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var records []domain.MetricsHistoryRecord
	for _, rec := range r.history {
		if rec.AccountID != filter.AccountID {
			continue
		}
		if filter.Field != nil && rec.Field != *filter.Field {
			continue
		}
		if filter.From != nil && rec.ChangedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && rec.ChangedAt.After(*filter.To) {
			continue
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ChangedAt.After(records[j].ChangedAt)
	})
	return records, nil
}

func copyAccount(acc *domain.Account) *domain.Account {
	out := *acc
	return &out
}
