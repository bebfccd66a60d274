package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeRequestRejectsMissingFields(t *testing.T) {
	// A missing type is rejected but the correlation id survives, so the
	// dispatcher can answer the caller.
	env, err := DecodeRequest([]byte(`{"correlationId":"c1","payload":"{}"}`))
	require.ErrorIs(t, err, ErrMissingType)
	require.Equal(t, "c1", env.CorrelationID)

	_, err = DecodeRequest([]byte(`{"type":"login","payload":"{}"}`))
	require.ErrorIs(t, err, ErrMissingCorrelationID)

	env, err = DecodeRequest([]byte(`not json`))
	require.Error(t, err)
	require.Empty(t, env.CorrelationID)

	env, err = DecodeRequest([]byte(`{"type":"login","correlationId":"c1","payload":"{}"}`))
	require.NoError(t, err)
	require.Equal(t, "login", env.Type)
	require.Equal(t, "c1", env.CorrelationID)
}

func TestDecodeScopedStructuredForm(t *testing.T) {
	var p updateInfoPayload
	id, err := decodeScoped(`{"accountId":"acc-1","name":"Ann"}`, &p)
	require.NoError(t, err)
	require.Equal(t, "acc-1", id)
	require.Equal(t, "Ann", p.Name)
}

func TestDecodeScopedLegacyDelimiterForm(t *testing.T) {
	var p updateInfoPayload
	id, err := decodeScoped(`acc-1;{"name":"Ann"}`, &p)
	require.NoError(t, err)
	require.Equal(t, "acc-1", id)
	require.Equal(t, "Ann", p.Name)
}

func TestDecodeScopedSplitsOnFirstDelimiterOnly(t *testing.T) {
	var p updateInfoPayload
	id, err := decodeScoped(`acc-1;{"name":"semi;colon"}`, &p)
	require.NoError(t, err)
	require.Equal(t, "acc-1", id)
	require.Equal(t, "semi;colon", p.Name)
}

func TestDecodeScopedBareID(t *testing.T) {
	id, err := decodeScoped("acc-1", nil)
	require.NoError(t, err)
	require.Equal(t, "acc-1", id)
}

func TestDecodeScopedRejectsEmptyID(t *testing.T) {
	_, err := decodeScoped(`;{"name":"Ann"}`, nil)
	require.Error(t, err)

	_, err = decodeScoped(`{"name":"Ann"}`, nil)
	require.Error(t, err)
}

func TestHistoryFilterWidensDatesToDayBounds(t *testing.T) {
	from := "2024-01-01"
	to := "2024-01-31"
	p := historyQueryPayload{From: &from, To: &to}

	filter, err := p.historyFilter("acc-1")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *filter.From)
	require.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC), *filter.To)
}

func TestHistoryFilterRejectsBadDates(t *testing.T) {
	bad := "31-01-2024"
	p := historyQueryPayload{From: &bad}

	_, err := p.historyFilter("acc-1")
	require.Error(t, err)
}
