package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds signing parameters. Secret must come from external
// configuration, never a compiled constant.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims represents the payload extracted from a verified token.
type Claims struct {
	AccountID string
	Email     string
	ExpiresAt time.Time
}

// ErrInvalidToken wraps parsing/validation errors.
var ErrInvalidToken = errors.New("invalid bearer token")

// TokenIssuer signs HS256 bearer tokens for authenticated accounts.
type TokenIssuer struct {
	cfg Config
}

// NewTokenIssuer constructs a TokenIssuer. A zero TTL defaults to 24 hours.
func NewTokenIssuer(cfg Config) *TokenIssuer {
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &TokenIssuer{cfg: cfg}
}

// Sign issues a token carrying the account id as subject together with the
// email, expiring after the configured TTL.
func (i *TokenIssuer) Sign(accountID, email string) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   i.cfg.Issuer,
		"sub":   accountID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(i.cfg.TTL).Unix(),
	})
	return token.SignedString([]byte(i.cfg.Secret))
}

// Parse validates a token and returns normalized claims.
func (i *TokenIssuer) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(i.cfg.Secret), nil
	}, jwt.WithIssuer(i.cfg.Issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if subject == "" {
		return nil, ErrInvalidToken
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}

	return &Claims{
		AccountID: subject,
		Email:     email,
		ExpiresAt: exp.Time,
	}, nil
}
