// Package services holds the outbound and credential logic around rooms: user
// tokens and the YouTube Data API client.
package services

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ytpm/backend/internal/apperr"
)

const maxNameRunes = 32

// namePolicy strips all markup from display names. Names are shown to every
// collaborator in the room.
var namePolicy = bluemonday.StrictPolicy()

// SanitizeName reduces a display name to plain text of at most 32 runes.
func SanitizeName(name string) string {
	clean := namePolicy.Sanitize(html.UnescapeString(name))
	clean = strings.TrimSpace(html.UnescapeString(clean))
	if utf8.RuneCountInString(clean) > maxNameRunes {
		clean = string([]rune(clean)[:maxNameRunes])
	}
	return clean
}

// Claims is the JWT payload of a collaborator token. The token is also the
// collaborator's identity for "added by" rendering and owner-only dequeue.
type Claims struct {
	RoomKey string `json:"rk"`
	Name    string `json:"name"`
	jwt.RegisteredClaims
}

// RoomChecker reports whether a room key names a live room.
type RoomChecker interface {
	QueueExistsForKey(key string) bool
}

// AuthService issues and validates collaborator tokens.
type AuthService struct {
	secret        []byte
	tokenDuration time.Duration
	rooms         RoomChecker
}

// NewAuthService creates an AuthService signing with secret. Tokens are only
// issued for room keys rooms knows about.
func NewAuthService(secret string, tokenDuration time.Duration, rooms RoomChecker) *AuthService {
	return &AuthService{
		secret:        []byte(secret),
		tokenDuration: tokenDuration,
		rooms:         rooms,
	}
}

// Authenticate issues a token binding name to the room identified by roomKey.
func (s *AuthService) Authenticate(roomKey, name string) (string, error) {
	roomKey = strings.TrimSpace(roomKey)
	name = SanitizeName(name)
	if roomKey == "" || name == "" {
		return "", fmt.Errorf("room key and name are required: %w", apperr.ErrInvalidArgument)
	}
	if !s.rooms.QueueExistsForKey(roomKey) {
		return "", fmt.Errorf("unknown room key: %w", apperr.ErrUnauthorized)
	}

	now := time.Now()
	claims := Claims{
		RoomKey: roomKey,
		Name:    name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ytpm",
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken verifies the signature and expiry, returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString)
}

// QueueFor returns the room key of a valid token.
func (s *AuthService) QueueFor(tokenString string) (string, bool) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return "", false
	}
	return claims.RoomKey, true
}

// NameFor returns the display name in a token. Expired tokens still resolve
// so items queued by collaborators who left keep their attribution.
func (s *AuthService) NameFor(tokenString string) string {
	claims, err := s.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return ""
	}
	return claims.Name
}

func (s *AuthService) parse(tokenString string, opts ...jwt.ParserOption) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("empty token")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
