package domain

import "time"

// TrackMetricChanges computes the audit rows an update produces against the
// stored account. Height and weight are inspected independently: a row is
// emitted only when the submitted value is present and either the stored
// value is absent or differs from it. When the stored value is absent the
// old value degenerates to the incoming value. Goal and activity level are
// never historized.
func TrackMetricChanges(stored *Account, update MetricsUpdate, now time.Time) []MetricsHistoryRecord {
	var records []MetricsHistoryRecord

	if rec, ok := trackField(stored.ID, FieldHeight, stored.Height, update.Height, now); ok {
		records = append(records, rec)
	}
	if rec, ok := trackField(stored.ID, FieldWeight, stored.Weight, update.Weight, now); ok {
		records = append(records, rec)
	}
	return records
}

func trackField(accountID, field string, stored, incoming *int, now time.Time) (MetricsHistoryRecord, bool) {
	if incoming == nil {
		return MetricsHistoryRecord{}, false
	}
	if stored != nil && *stored == *incoming {
		return MetricsHistoryRecord{}, false
	}

	old := stored
	if old == nil {
		old = incoming
	}
	return MetricsHistoryRecord{
		AccountID: accountID,
		Field:     field,
		OldValue:  intCopy(old),
		NewValue:  intCopy(incoming),
		ChangedAt: now,
	}, true
}

// Apply overwrites the account's metric fields with the submitted values.
// Nil submissions leave the stored value in place.
func (u MetricsUpdate) Apply(acc *Account) {
	if u.Height != nil {
		acc.Height = intCopy(u.Height)
	}
	if u.Weight != nil {
		acc.Weight = intCopy(u.Weight)
	}
	if u.Goal != nil {
		goal := *u.Goal
		acc.Goal = &goal
	}
	if u.ActivityLevel != nil {
		level := *u.ActivityLevel
		acc.ActivityLevel = &level
	}
}

func intCopy(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
