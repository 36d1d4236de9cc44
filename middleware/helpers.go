package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/Dosada05/tournament-orchestrator/models"
	"github.com/golang-jwt/jwt/v4"
)

// Определяем константы для имен JWT claims
const (
	jwtClaimUserID   = "user_id"
	jwtClaimName     = "name"
	jwtClaimUsername = "username"
)

// WithUser returns a context carrying claims for the given user, as
// Authenticate would produce them.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, jwt.MapClaims{
		jwtClaimUserID: user.ID,
		jwtClaimName:   user.Name,
	})
}

// GetUserFromContext returns the caller identity. The user id claim may be a
// string or an integral number; the display name falls back to the id.
func GetUserFromContext(ctx context.Context) (models.User, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return models.User{}, errors.New("user claims not found in context or invalid type")
	}

	userIDClaim, ok := claims[jwtClaimUserID]
	if !ok {
		return models.User{}, fmt.Errorf("missing '%s' claim in token", jwtClaimUserID)
	}

	var userID string
	switch v := userIDClaim.(type) {
	case string:
		userID = v
	case float64:
		if v != math.Trunc(v) {
			return models.User{}, fmt.Errorf("'%s' claim is not an integer: %f", jwtClaimUserID, v)
		}
		userID = strconv.FormatInt(int64(v), 10)
	default:
		return models.User{}, fmt.Errorf("invalid type for '%s' claim: expected string or number, got %T", jwtClaimUserID, userIDClaim)
	}
	if userID == "" {
		return models.User{}, fmt.Errorf("empty '%s' claim", jwtClaimUserID)
	}

	name := stringClaim(claims, jwtClaimName)
	if name == "" {
		name = stringClaim(claims, jwtClaimUsername)
	}
	if name == "" {
		name = userID
	}

	return models.User{ID: userID, Name: name}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}
