package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/pkg/clock"
)

const (
	ScopeTasksCreate = "tasks:create"
	serviceSubject   = "service"
	defaultTokenTTL  = 5 * time.Minute
)

// ServiceClaims is what the task service reads from a service token.
type ServiceClaims struct {
	UserID string `json:"user_id"`
	Scope  string `json:"scope"`
	jwt.RegisteredClaims
}

// Issuer mints short-lived HS256 tokens that let a background consumer act
// for a user against the task service.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewIssuer returns nil when no secret is configured, which callers treat as
// "no service credential available".
func NewIssuer(secret string, ttl time.Duration, c clock.Clock) *Issuer {
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: c}
}

func (i *Issuer) IssueFor(userID string) (string, error) {
	if i == nil {
		return "", domain.ErrNoCredential
	}
	if userID == "" {
		return "", domain.NewError(domain.ErrCodeValidation, "user id is required for a service token")
	}
	now := i.clock.Now()
	claims := ServiceClaims{
		UserID: userID,
		Scope:  ScopeTasksCreate,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   serviceSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", domain.WrapError(domain.ErrCodeAuthUnavailable, "sign service token", err)
	}
	return token, nil
}
