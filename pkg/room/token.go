package room

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// VideoGrant is the room permission set carried in an access token.
type VideoGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
	Agent        bool   `json:"agent,omitempty"`
}

// AccessClaims are the JWT claims understood by the room server.
type AccessClaims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name,omitempty"`
	Video VideoGrant `json:"video"`
}

// NewAccessToken mints an HS256 token that lets identity join room as an
// agent for ttl.
func NewAccessToken(apiKey, apiSecret, identity, room string, ttl time.Duration, now time.Time) (string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", errors.New("room: api key and secret are required")
	}
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    apiKey,
			Subject:   identity,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: identity,
		Video: VideoGrant{
			Room:         room,
			RoomJoin:     true,
			CanPublish:   true,
			CanSubscribe: true,
			Agent:        true,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(apiSecret))
	if err != nil {
		return "", fmt.Errorf("room: sign token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies a token minted by NewAccessToken.
func ParseAccessToken(token, apiKey, apiSecret string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(apiSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(apiKey))
	if err != nil {
		return nil, fmt.Errorf("room: parse token: %w", err)
	}
	return claims, nil
}
