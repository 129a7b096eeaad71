package jwt

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DownloadClaims represents the claims of a document download link
type DownloadClaims struct {
	JobID    uuid.UUID `json:"job_id"`
	Document string    `json:"doc"`
	jwt.RegisteredClaims
}
