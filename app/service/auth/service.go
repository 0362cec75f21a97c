package auth

import (
	"errors"
	"fmt"
	"receiptagent/app/config"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/samber/do"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type User struct {
	ID    string
	Email string
}

// Service verifies HS256 user tokens issued by the identity provider.
type Service struct {
	secret   []byte
	audience string
	parser   *jwt.Parser
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(cfg.Auth.JWTSecret, cfg.Auth.Audience), nil
}

func NewService(secret, audience string) *Service {
	return &Service{
		secret:   []byte(secret),
		audience: audience,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Authenticate parses an Authorization header value.
func (s *Service) Authenticate(header string) (*User, error) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}

	return s.Verify(strings.TrimSpace(raw))
}

func (s *Service) Verify(raw string) (*User, error) {
	var claims Claims

	_, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject is empty", ErrInvalidToken)
	}

	if s.audience != "" && !claims.VerifyAudience(s.audience, true) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrInvalidToken)
	}

	return &User{
		ID:    claims.Subject,
		Email: claims.Email,
	}, nil
}

// Issue signs a token for userID. Used by tooling and tests.
func (s *Service) Issue(userID string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = userID
	if s.audience != "" && len(claims.Audience) == 0 {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: claims}).SignedString(s.secret)
}
