// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the JWT payload: the user's email travels in the standard
// subject claim and the device ID in "did". Both are required; a record's
// user_email is stamped from the token, never from the request body.
type TokenClaims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// TokenAuthenticator issues and validates HS256 bearer tokens.
type TokenAuthenticator struct {
	secret []byte
}

// NewTokenAuthenticator creates an authenticator with the given signing secret.
func NewTokenAuthenticator(secret string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret)}
}

// GenerateToken creates a signed token for the given user and device.
func (a *TokenAuthenticator) GenerateToken(email, deviceID string, expiration time.Duration) (string, error) {
	claims := &TokenClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses and verifies a token string.
func (a *TokenAuthenticator) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing user email in token")
	}
	if claims.DeviceID == "" {
		return nil, fmt.Errorf("missing device ID in token")
	}
	return claims, nil
}

// Authenticate implements Authenticator: it pulls the bearer token off the
// request and returns the identity it carries.
func (a *TokenAuthenticator) Authenticate(r *http.Request) (email, deviceID string, err error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "", fmt.Errorf("missing authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", "", fmt.Errorf("invalid authorization header format")
	}
	claims, err := a.ValidateToken(token)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.DeviceID, nil
}
