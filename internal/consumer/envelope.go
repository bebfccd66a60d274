package consumer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/account/internal/domain"
)

// Request type tags routed by the dispatcher.
const (
	TypeRegister             = "register"
	TypeLogin                = "login"
	TypeGetProfileInfo       = "get-profile-info"
	TypeGetProfileMetrics    = "get-profile-metrics"
	TypeUpdateProfileInfo    = "update-profile-info"
	TypeUpdateProfileMetrics = "update-profile-metrics"
	TypeGetMetricsHistory    = "get-metrics-history"
)

// RequestEnvelope is the outer message pulled from the request queue. The
// payload is an opaque serialized string whose inner schema depends on Type.
type RequestEnvelope struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId"`
	Payload       string `json:"payload"`
}

// ErrMissingCorrelationID rejects envelopes that cannot be answered.
var ErrMissingCorrelationID = errors.New("missing correlation id")

// ErrMissingType rejects envelopes with no routable type tag.
var ErrMissingType = errors.New("missing request type")

// DecodeRequest parses the wire bytes into a RequestEnvelope. On a
// validation failure the partially decoded envelope is returned alongside
// the error: a rejected message whose correlation id survived decoding can
// still be answered so the caller does not hang.
func DecodeRequest(raw []byte) (RequestEnvelope, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return RequestEnvelope{}, fmt.Errorf("decode request envelope: %w", err)
	}
	if env.CorrelationID == "" {
		return env, ErrMissingCorrelationID
	}
	if env.Type == "" {
		return env, ErrMissingType
	}
	return env, nil
}

// registerPayload is the inner schema of a register request.
type registerPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// loginPayload is the inner schema of a login request.
type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// updateInfoPayload carries the new display name for an account.
type updateInfoPayload struct {
	AccountID string `json:"accountId"`
	Name      string `json:"name"`
}

// updateMetricsPayload carries a partial metrics submission. Absent fields
// are left untouched.
type updateMetricsPayload struct {
	AccountID     string  `json:"accountId"`
	Height        *int    `json:"height"`
	Weight        *int    `json:"weight"`
	Goal          *string `json:"goal"`
	ActivityLevel *string `json:"activityLevel"`
}

// historyQueryPayload carries the optional refinements of a history query.
// Dates use the 2006-01-02 layout and are inclusive.
type historyQueryPayload struct {
	AccountID string  `json:"accountId"`
	Field     *string `json:"field"`
	From      *string `json:"from"`
	To        *string `json:"to"`
}

func decodeRegister(raw string) (registerPayload, error) {
	var p registerPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return registerPayload{}, fmt.Errorf("decode register payload: %w", err)
	}
	if p.Email == "" || p.Password == "" {
		return registerPayload{}, errors.New("register payload requires email and password")
	}
	return p, nil
}

func decodeLogin(raw string) (loginPayload, error) {
	var p loginPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return loginPayload{}, fmt.Errorf("decode login payload: %w", err)
	}
	if p.Email == "" {
		return loginPayload{}, errors.New("login payload requires email")
	}
	return p, nil
}

// decodeScoped parses an id-scoped payload. The structured form is a JSON
// object carrying the account id as a typed accountId field. The legacy
// "<accountId>;<jsonBody>" form is still accepted, splitting on the first
// semicolon only; account ids must not contain one.
func decodeScoped(raw string, body interface{}) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var head struct {
			AccountID string `json:"accountId"`
		}
		if err := json.Unmarshal([]byte(trimmed), &head); err != nil {
			return "", fmt.Errorf("decode scoped payload: %w", err)
		}
		if head.AccountID == "" {
			return "", errors.New("scoped payload requires accountId")
		}
		if body != nil {
			if err := json.Unmarshal([]byte(trimmed), body); err != nil {
				return "", fmt.Errorf("decode scoped payload body: %w", err)
			}
		}
		return head.AccountID, nil
	}

	id, rest, found := strings.Cut(trimmed, ";")
	if id == "" {
		return "", errors.New("scoped payload requires account id")
	}
	if found && rest != "" && body != nil {
		if err := json.Unmarshal([]byte(rest), body); err != nil {
			return "", fmt.Errorf("decode scoped payload body: %w", err)
		}
	}
	return id, nil
}

// historyFilter converts the query payload into the domain filter. From is
// widened to the start of its day and To to the end (23:59:59), both UTC
// and inclusive.
func (p historyQueryPayload) historyFilter(accountID string) (domain.HistoryFilter, error) {
	filter := domain.HistoryFilter{AccountID: accountID, Field: p.Field}

	if p.From != nil {
		day, err := time.Parse("2006-01-02", *p.From)
		if err != nil {
			return domain.HistoryFilter{}, fmt.Errorf("parse from date: %w", err)
		}
		from := day.UTC()
		filter.From = &from
	}
	if p.To != nil {
		day, err := time.Parse("2006-01-02", *p.To)
		if err != nil {
			return domain.HistoryFilter{}, fmt.Errorf("parse to date: %w", err)
		}
		to := day.UTC().Add(24*time.Hour - time.Second)
		filter.To = &to
	}
	return filter, nil
}
