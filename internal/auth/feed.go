/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// FeedScope marks a token as a calendar feed token. Feed tokens live in
// calendar app settings for months, so they carry no user identity and
// unlock exactly one preset's feed.
const FeedScope = "feed"

// ErrNotFeedToken is returned when a token parses but is not a feed token.
var ErrNotFeedToken = errors.New("token is not a feed token")

// FeedClaims identify the preset a feed token unlocks.
type FeedClaims struct {
	PresetID string `json:"pid"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// IssueFeedToken creates a feed token for the given preset.
func IssueFeedToken(secret []byte, presetID string, ttl time.Duration) (string, time.Time, error) {
	expiresAt := time.Now().Add(ttl)

	claims := FeedClaims{
		PresetID: presetID,
		Scope:    FeedScope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   presetID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseFeedToken validates a feed token. Login JWTs are rejected even when
// their signature checks out.
func ParseFeedToken(secret []byte, token string) (*FeedClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &FeedClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*FeedClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Scope != FeedScope || claims.PresetID == "" {
		return nil, ErrNotFeedToken
	}

	return claims, nil
}
