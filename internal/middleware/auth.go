// Package middleware provides HTTP middleware for authentication, authorization,
// CORS handling, rate limiting, and request context management.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ytpm/backend/internal/crypto"
	"github.com/ytpm/backend/internal/logging"
	"github.com/ytpm/backend/internal/queue"
	"github.com/ytpm/backend/internal/services"
)

type contextKey string

const (
	// ClientKey is the context key for the authenticated collaborator.
	ClientKey contextKey = "client"
	// PlayerRoomKey is the context key for the room resolved for a player device.
	PlayerRoomKey contextKey = "playerRoom"
)

// PlayerCookie holds the player token of the browser acting as a room's device.
const PlayerCookie = "ytpm_player_token"

// OperatorHeader carries the operator key for /api/internal.
const OperatorHeader = "X-Operator-Key"

// Rooms resolves rooms by key and by player token.
type Rooms interface {
	GetPlayerQueueForKey(key string) (*queue.PlayerQueue, bool)
	GetPlayerQueueForToken(token string) (*queue.PlayerQueue, bool)
}

// Client is the caller of an /api/client route.
type Client struct {
	Token  string
	Claims *services.Claims
	Queue  *queue.PlayerQueue
}

// TokenFromRequest returns the collaborator token from the "token" query
// parameter or a Bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// ClientAuth validates the collaborator token and resolves its room. Every
// failure gets the same 401 so callers cannot tell which room keys exist.
func ClientAuth(authService *services.AuthService, rooms Rooms) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventMissingToken, "missing client token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := authService.ValidateToken(token)
			if err != nil {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventInvalidToken, "invalid or expired token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			q, ok := rooms.GetPlayerQueueForKey(claims.RoomKey)
			if !ok {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventUnknownRoom, "token for unknown room")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClientKey, &Client{Token: token, Claims: claims, Queue: q})
			ctx = logging.UpdateRequestAttrs(ctx, q.Key(), "client")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PlayerAuth resolves the room of a player device by the "token" query
// parameter, then the player cookie, then the "key" query parameter.
func PlayerAuth(rooms Rooms) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q, ok := resolvePlayerRoom(r, rooms)
			if !ok {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventUnknownRoom, "player request for unknown room")
				http.Error(w, "Invalid request", http.StatusBadRequest)
				return
			}

			ctx := context.WithValue(r.Context(), PlayerRoomKey, q)
			ctx = logging.UpdateRequestAttrs(ctx, q.Key(), "player")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolvePlayerRoom(r *http.Request, rooms Rooms) (*queue.PlayerQueue, bool) {
	if token := r.URL.Query().Get("token"); token != "" {
		return rooms.GetPlayerQueueForToken(token)
	}
	if c, err := r.Cookie(PlayerCookie); err == nil && c.Value != "" {
		return rooms.GetPlayerQueueForToken(c.Value)
	}
	if key := r.URL.Query().Get("key"); key != "" {
		return rooms.GetPlayerQueueForKey(key)
	}
	return nil, false
}

// OperatorOnly guards operational routes with the operator key. When no key
// is configured the routes answer 404.
func OperatorOnly(key *crypto.OperatorKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !key.Enabled() {
				http.NotFound(w, r)
				return
			}
			if !key.Verify(r.Header.Get(OperatorHeader)) {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventBadOperatorKey, "invalid operator key")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			ctx := logging.UpdateRequestAttrs(r.Context(), "", "operator")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClient returns the collaborator set by ClientAuth, or nil.
func GetClient(ctx context.Context) *Client {
	c, _ := ctx.Value(ClientKey).(*Client)
	return c
}

// GetPlayerQueue returns the room set by PlayerAuth, or nil.
func GetPlayerQueue(ctx context.Context) *queue.PlayerQueue {
	q, _ := ctx.Value(PlayerRoomKey).(*queue.PlayerQueue)
	return q
}
