package consumer

import (
	"context"
	"errors"
	"time"

	"example.com/account/internal/domain"
)

// ErrUnknownType signals a request type with no registered handler. The
// dispatcher logs and drops these without a response.
var ErrUnknownType = errors.New("unknown request type")

// Handlers routes decoded request envelopes to the domain service. Every
// handler owns exactly one storage transaction through the service.
type Handlers struct {
	service *domain.Service
}

// NewHandlers constructs the handler set.
func NewHandlers(service *domain.Service) *Handlers {
	return &Handlers{service: service}
}

// authResponse is the payload answering register and login. The correlation
// id is echoed inside the payload in addition to the envelope.
type authResponse struct {
	Token         string `json:"token"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
}

// profileInfoResponse projects identity fields only.
type profileInfoResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// profileMetricsResponse projects metric fields only.
type profileMetricsResponse struct {
	Height        *int    `json:"height"`
	Weight        *int    `json:"weight"`
	Goal          *string `json:"goal"`
	ActivityLevel *string `json:"activityLevel"`
}

// profileResponse is the full projection returned by the update handlers.
type profileResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Height        *int      `json:"height"`
	Weight        *int      `json:"weight"`
	Goal          *string   `json:"goal"`
	ActivityLevel *string   `json:"activityLevel"`
	CreatedAt     time.Time `json:"createdAt"`
}

// historyRecordResponse is one audit entry in a history query result.
type historyRecordResponse struct {
	Field     string    `json:"field"`
	OldValue  *int      `json:"oldValue"`
	NewValue  *int      `json:"newValue"`
	ChangedAt time.Time `json:"changedAt"`
}

// Handle executes the handler selected by the envelope's type tag. A nil
// result with a nil error is the absence marker and is published as the
// null sentinel.
func (h *Handlers) Handle(ctx context.Context, env RequestEnvelope) (interface{}, error) {
	switch env.Type {
	case TypeRegister:
		return h.register(ctx, env)
	case TypeLogin:
		return h.login(ctx, env)
	case TypeGetProfileInfo:
		return h.getProfileInfo(ctx, env)
	case TypeGetProfileMetrics:
		return h.getProfileMetrics(ctx, env)
	case TypeUpdateProfileInfo:
		return h.updateProfileInfo(ctx, env)
	case TypeUpdateProfileMetrics:
		return h.updateProfileMetrics(ctx, env)
	case TypeGetMetricsHistory:
		return h.getMetricsHistory(ctx, env)
	default:
		return nil, ErrUnknownType
	}
}

func (h *Handlers) register(ctx context.Context, env RequestEnvelope) (interface{}, error) {
	p, err := decodeRegister(env.Payload)
	if err != nil {
		return nil, err
	}

	result, err := h.service.Register(ctx, domain.RegisterInput{
		Email:    p.Email,
		Password: p.Password,
		Name:     p.Name,
	})
	if err != nil {
		return nil, err
	}
	return authResponse{Token: result.Token, Message: result.Message, CorrelationID: env.CorrelationID}, nil
}

func (h *Handlers) login(ctx context.Context, env RequestEnvelope) (interface{}, error) {
	p, err := decodeLogin(env.Payload)
	if err != nil {
		return nil, err
	}

	result, err := h.service.Login(ctx, p.Email, p.Password)
	if err != nil {
		return nil, err
	}
	return authResponse{Token: result.Token, Message: result.Message, CorrelationID: env.CorrelationID}, nil
}

func (h *Handlers) getProfileInfo(ctx context.Context, env RequestEnvelope) (interface{}, error) {
	accountID, err := decodeScoped(env.Payload, nil)
	if err != nil {
		return nil, err
	}

	account, err := h.service.GetProfile(ctx, accountID)
	if err != nil || account == nil {
		return nil, err
	}
	return profileInfoResponse{
		ID:        account.ID,
		Email:     account.Email,
		Name:      account.Name,
		CreatedAt: account.CreatedAt,
	}, nil
}

func (h *Handlers) getProfileMetrics(ctx context.Context, env RequestEnvelope) (interface{}, error) {
	accountID, err := decodeScoped(env.Payload, nil)
	if err != nil {
		return nil, err
	}

	account, err := h.service.GetProfile(ctx, accountID)
	if err != nil || account == nil {
		return nil, err
	}
	return profileMetricsResponse{
		Height:        account.Height,
		Weight:        account.Weight,
		Goal:          account.Goal,
		ActivityLevel: account.ActivityLevel,
	}, nil
}

func (h *Handlers) updateProfileInfo(ctx context.Context, env RequestEnvelope) (interface{}, error) {
	var p updateInfoPayload
	accountID, err := decodeScoped(env.Payload, &p)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, errors.New("update-profile-info payload requires name")
	}

	account, err := h.service.UpdateProfileInfo(ctx, accountID, p.Name)
	if err != nil || account == nil {
		return nil, err
	}
	return fullProfile(account), nil
}

func (h *Handlers) updateProfileMetrics(ctx context.Context, env RequestEnvelope) (interface{}, error) {
	var p updateMetricsPayload
	accountID, err := decodeScoped(env.Payload, &p)
	if err != nil {
		return nil, err
	}

	account, err := h.service.UpdateProfileMetrics(ctx, accountID, domain.MetricsUpdate{
		Height:        p.Height,
		Weight:        p.Weight,
		Goal:          p.Goal,
		ActivityLevel: p.ActivityLevel,
	})
	if err != nil || account == nil {
		return nil, err
	}
	return fullProfile(account), nil
}

func (h *Handlers) getMetricsHistory(ctx context.Context, env RequestEnvelope) (interface{}, error) {
	var p historyQueryPayload
	accountID, err := decodeScoped(env.Payload, &p)
	if err != nil {
		return nil, err
	}

	filter, err := p.historyFilter(accountID)
	if err != nil {
		return nil, err
	}

	records, err := h.service.GetMetricsHistory(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]historyRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, historyRecordResponse{
			Field:     rec.Field,
			OldValue:  rec.OldValue,
			NewValue:  rec.NewValue,
			ChangedAt: rec.ChangedAt,
		})
	}
	return out, nil
}

func fullProfile(account *domain.Account) profileResponse {
	return profileResponse{
		ID:            account.ID,
		Email:         account.Email,
		Name:          account.Name,
		Height:        account.Height,
		Weight:        account.Weight,
		Goal:          account.Goal,
		ActivityLevel: account.ActivityLevel,
		CreatedAt:     account.CreatedAt,
	}
}
