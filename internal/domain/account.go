package domain

import "time"

// Account represents the canonical user record stored in PostgreSQL.
type Account struct {
	ID             string
	Email          string
	PasswordDigest string
	Name           string
	Height         *int
	Weight         *int
	Goal           *string
	ActivityLevel  *string
	CreatedAt      time.Time
}

// Tracked metric field names recorded in the history ledger.
const (
	FieldHeight = "height"
	FieldWeight = "weight"
)

// MetricsHistoryRecord is one append-only audit entry describing a single
// field transition. Rows are immutable once written.
type MetricsHistoryRecord struct {
	ID        int64
	AccountID string
	Field     string
	OldValue  *int
	NewValue  *int
	ChangedAt time.Time
}

// MetricsUpdate carries a partial metrics submission. Nil fields are
// left untouched.
type MetricsUpdate struct {
	Height        *int
	Weight        *int
	Goal          *string
	ActivityLevel *string
}

// HistoryFilter narrows a metrics-history query. AccountID is mandatory;
// the remaining predicates are optional refinements.
type HistoryFilter struct {
	AccountID string
	Field     *string
	From      *time.Time
	To        *time.Time
}
