package server

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const sessionExp = time.Hour * 24

const userIdClaim = "user-id"

// newSessionToken mints an HS256 token bound to the connection's identity,
// returned to the client on auth_success as a bearer credential for future
// surfaces.
func newSessionToken(userId string, key []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		"exp":       time.Now().Add(sessionExp).Unix(),
	})

	return token.SignedString(key)
}

// VerifySessionToken validates a presented session token and returns the
// identity it is bound to.
func VerifySessionToken(tokenString string, key []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok {
		return "", fmt.Errorf("invalid user id claim")
	}

	return userId, nil
}
