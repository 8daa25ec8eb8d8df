package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// clockSkew is tolerated on exp, iat and nbf.
const clockSkew = 30 * time.Second

// Claims are the access token claims shared with the identity service.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) IsAdmin() bool { return c.Role == RoleAdmin }

// JWTService verifies HS256 access tokens signed with the shared secret.
// Issuing is only used by local tooling and tests.
type JWTService struct {
	secretKey []byte
	ttl       time.Duration
	parser    *jwt.Parser
}

func NewJWTService(secretKey string, ttl time.Duration) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		parser:    jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// GenerateAccessToken signs a token for userID valid for the configured ttl.
func (s *JWTService) GenerateAccessToken(userID, email, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken returns the claims of a well-formed, unexpired token
// that names a user. Every other failure is ErrInvalidToken.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case claims.UserID == "":
		return nil, ErrInvalidToken
	}
	return claims, nil
}
