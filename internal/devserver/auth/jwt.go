// Package auth issues and checks the HS256 bearer tokens reporter clients
// present to the development server.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the registered claims plus the device that reports.
type Claims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"device_id"`
}

func GenerateToken(deviceID string, secretKey []byte, validity time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  deviceID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		DeviceID: deviceID,
	}
	// zero validity issues a token that never expires
	if validity != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(validity))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// DeviceFromToken validates tokenString and returns its device id. Every
// failure wraps common.ErrUnauthorized.
func DeviceFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
	}
	if !token.Valid {
		return "", fmt.Errorf("%w: invalid token", common.ErrUnauthorized)
	}
	if claims.DeviceID == "" {
		return "", fmt.Errorf("%w: %w", common.ErrUnauthorized, errors.New("token has no device"))
	}

	return claims.DeviceID, nil
}
