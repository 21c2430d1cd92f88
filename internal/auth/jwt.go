package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stagepass/stagepass/internal/domain/user"
)

// Verification failures are reported as one of these three kinds so the
// HTTP layer can log precisely while answering the client generically.
var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
)

// leeway absorbs small clock skew between issuer and verifier. 30s is the
// documented grace window; nothing beyond it is tolerated.
const leeway = 30 * time.Second

// Each token carries its kind as a claim, so an access token can never
// pass refresh verification even if the two secrets were ever equal.
const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

type AccessClaims struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
	// Role here is a hint for display only. Authorization always re-reads
	// the role from the store.
	Role string `json:"role"`
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID string `json:"sub"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// Manager signs and verifies both token kinds. Each kind uses its own
// secret so leaking one cannot forge the other.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (m *Manager) GenerateAccessToken(userID, email string, role user.Role) (string, error) {
	now := time.Now().UTC()

	claims := AccessClaims{
		UserID: userID,
		Email:  email,
		Role:   string(role),
		Kind:   kindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.accessSecret)
}

func (m *Manager) GenerateRefreshToken(userID string) (string, error) {
	now := time.Now().UTC()

	claims := RefreshClaims{
		UserID: userID,
		Kind:   kindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.refreshSecret)
}

func (m *Manager) VerifyAccessToken(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	if err := m.parse(tokenStr, claims, m.accessSecret); err != nil {
		return nil, err
	}

	if claims.Kind != kindAccess {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

func (m *Manager) VerifyRefreshToken(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}

	if err := m.parse(tokenStr, claims, m.refreshSecret); err != nil {
		return nil, err
	}

	if claims.Kind != kindRefresh {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256

		_, ok := t.Method.(*jwt.SigningMethodHMAC)

		if !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithLeeway(leeway))

	if err != nil {
		return classify(err)
	}

	if !token.Valid {
		return ErrTokenMalformed
	}

	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignatureInvalid
	default:
		// covers jwt.ErrTokenMalformed plus anything unparseable
		return ErrTokenMalformed
	}
}
