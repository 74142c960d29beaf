package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 60 * time.Minute

	// RoleAdmin is the only role the admin surface accepts.
	RoleAdmin = "admin"
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
)

// AdminClaims is the payload of an admin token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the admin JWT issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer signs admin tokens for operators and automation.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    func() time.Time
}

// NewTokenIssuer validates cfg and fills the TTL and clock defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	issuer := &TokenIssuer{
		secret:   append([]byte(nil), cfg.SigningSecret...),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TokenTTL,
		clock:    cfg.Clock,
	}
	if issuer.ttl <= 0 {
		issuer.ttl = defaultTokenTTL
	}
	if issuer.clock == nil {
		issuer.clock = time.Now
	}
	return issuer, nil
}

// IssueAdminToken signs an admin-role token for subject and reports when it expires.
func (i *TokenIssuer) IssueAdminToken(_ context.Context, subject string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errMissingSubjectClaim
	}

	issuedAt := i.clock().UTC()
	expiresAt := issuedAt.Add(i.ttl)
	registered := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if i.audience != "" {
		registered.Audience = jwt.ClaimStrings{i.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{Role: RoleAdmin, RegisteredClaims: registered}).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
