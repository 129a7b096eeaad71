package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Manager signs and verifies document download tokens
type Manager struct {
	secret string
	expiry time.Duration
	issuer string
	now    func() time.Time
}

// NewManager creates a new JWT manager
func NewManager(secret string, expiry time.Duration) *Manager {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Manager{
		secret: secret,
		expiry: expiry,
		issuer: "meeting-minutes",
		now:    time.Now,
	}
}

// GenerateDownloadToken generates a token granting access to one document of a job
func (m *Manager) GenerateDownloadToken(jobID uuid.UUID, document string) (string, error) {
	if document == "" {
		return "", fmt.Errorf("document is empty")
	}

	now := m.now()
	claims := &DownloadClaims{
		JobID:    jobID,
		Document: document,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   jobID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secret))
}

// ValidateDownloadToken validates and parses a download token
func (m *Manager) ValidateDownloadToken(tokenString string) (*DownloadClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DownloadClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secret), nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*DownloadClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.JobID == uuid.Nil || claims.Document == "" {
		return nil, fmt.Errorf("token is missing job or document")
	}

	return claims, nil
}

// GetExpiry returns the download token lifetime
func (m *Manager) GetExpiry() time.Duration {
	return m.expiry
}
