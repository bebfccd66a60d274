// Package domain defines the business logic for the account service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateEmail indicates an account already exists for the submitted email.
	ErrDuplicateEmail = errors.New("account already exists for email")
	// ErrAccountNotFound is returned when an account cannot be located.
	ErrAccountNotFound = errors.New("account not found")
)

// Response messages returned to callers through the response channel.
const (
	MsgRegistered         = "registration successful"
	MsgDuplicateEmail     = "email already registered"
	MsgLoginOK            = "login successful"
	MsgInvalidCredentials = "invalid credentials"
)

// Repository captures persistence operations. Every mutating call executes
// inside a single storage transaction.
type Repository interface {
	CreateAccount(ctx context.Context, account Account) error
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByID(ctx context.Context, accountID string) (*Account, error)
	UpdateAccountName(ctx context.Context, accountID, name string) (*Account, error)
	UpdateAccountMetrics(ctx context.Context, accountID string, update MetricsUpdate, now time.Time) (*Account, error)
	ListMetricsHistory(ctx context.Context, filter HistoryFilter) ([]MetricsHistoryRecord, error)
}

// PasswordHasher is the opaque digest capability used for credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// TokenSigner issues bearer tokens for authenticated accounts.
type TokenSigner interface {
	Sign(accountID, email string) (string, error)
}

// Service orchestrates account workflows.
type Service struct {
	repo   Repository
	hasher PasswordHasher
	tokens TokenSigner
}

// NewService constructs a Service.
func NewService(repo Repository, hasher PasswordHasher, tokens TokenSigner) *Service {
	return &Service{repo: repo, hasher: hasher, tokens: tokens}
}

// RegisterInput captures the registration payload.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// AuthResult is the outcome of register and login. An empty token signals
// rejection; Message carries the caller-facing explanation.
type AuthResult struct {
	Token   string
	Message string
}

// Register creates a new account and issues a token for it. A duplicate
// email yields an empty token and the duplicate message rather than an
// error. The existence pre-check and the insert run as two separate
// storage calls; the pre-check is only a fast path and carries no
// correctness weight. The storage unique constraint is the final arbiter:
// a constraint violation on insert (two workers racing the same email) is
// converted to the same duplicate response as a failed pre-check.
func (s *Service) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	email := NormalizeEmail(input.Email)

	existing, err := s.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		return AuthResult{}, err
	}
	if existing != nil {
		return AuthResult{Message: MsgDuplicateEmail}, nil
	}

	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	account := Account{
		ID:             uuid.NewString(),
		Email:          email,
		PasswordDigest: digest,
		Name:           input.Name,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.repo.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return AuthResult{Message: MsgDuplicateEmail}, nil
		}
		return AuthResult{}, err
	}

	token, err := s.tokens.Sign(account.ID, account.Email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("sign token: %w", err)
	}
	return AuthResult{Token: token, Message: MsgRegistered}, nil
}

// Login verifies credentials and issues a token. An unknown email and a
// wrong password produce the identical generic failure so callers cannot
// probe which emails are registered.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	account, err := s.repo.GetAccountByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return AuthResult{}, err
	}
	if account == nil || !s.hasher.Verify(password, account.PasswordDigest) {
		return AuthResult{Message: MsgInvalidCredentials}, nil
	}

	token, err := s.tokens.Sign(account.ID, account.Email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("sign token: %w", err)
	}
	return AuthResult{Token: token, Message: MsgLoginOK}, nil
}

// GetProfile fetches the full account by id. A missing account resolves to
// nil rather than an error.
func (s *Service) GetProfile(ctx context.Context, accountID string) (*Account, error) {
	return s.repo.GetAccountByID(ctx, accountID)
}

// UpdateProfileInfo overwrites the display name and returns the updated
// account, or nil when the account does not exist.
func (s *Service) UpdateProfileInfo(ctx context.Context, accountID, name string) (*Account, error) {
	return s.repo.UpdateAccountName(ctx, accountID, name)
}

// UpdateProfileMetrics applies a partial metrics update together with its
// audit rows in one transaction and returns the updated account, or nil
// when the account does not exist.
func (s *Service) UpdateProfileMetrics(ctx context.Context, accountID string, update MetricsUpdate) (*Account, error) {
	return s.repo.UpdateAccountMetrics(ctx, accountID, update, time.Now().UTC())
}

// GetMetricsHistory returns audit records matching the filter, newest first.
func (s *Service) GetMetricsHistory(ctx context.Context, filter HistoryFilter) ([]MetricsHistoryRecord, error) {
	return s.repo.ListMetricsHistory(ctx, filter)
}

// NormalizeEmail lowercases and trims an email so lookups and the unique
// index are effectively case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
