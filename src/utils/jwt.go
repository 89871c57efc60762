package utils

import (
	"fmt"
	"os"
	"time"

	"promarket/src/types"

	"github.com/golang-jwt/jwt/v4"
)

var jwtKey = []byte(os.Getenv("JWT_SECRET"))

// GenerateJWT issues the first-party bearer token. Subject is the user
// id; the professional id rides along so handlers can authorize
// professional-side operations without a lookup.
func GenerateJWT(email string, userID uint, role string, professionalID uint) (string, error) {
	expirationTime := time.Now().Add(24 * time.Hour)
	claims := &types.Claims{
		Username:     email,
		Role:         role,
		Professional: professionalID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtKey)
}
