// Package middleware resolves the calling actor for the refund API.
// Tokens are issued upstream; this service only reads identity and role.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

const actorKey = "actor"

var ErrUnauthenticated = errors.New("unauthenticated")

// ActorClaims is the token payload: the subject is the actor id.
type ActorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTResolver validates HS256 bearer tokens.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) Resolve(tokenString string) (models.Actor, error) {
	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid {
		return models.Actor{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}

	actor := models.Actor{ID: claims.Subject, Role: models.Role(strings.ToUpper(claims.Role))}
	if actor.ID == "" {
		return models.Actor{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	if !actor.Role.Valid() {
		return models.Actor{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, claims.Role)
	}
	return actor, nil
}

// SignToken issues a token the resolver accepts. Used by tooling and tests.
func SignToken(secret string, actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Authenticate resolves the bearer token and stores the actor on the context.
func Authenticate(resolver interfaces.ActorResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortUnauthenticated(c, "missing bearer token")
			return
		}

		actor, err := resolver.Resolve(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			logger.Warn("Rejected bearer token", zap.String("path", c.FullPath()), zap.Error(err))
			abortUnauthenticated(c, "invalid token")
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the actor stored by Authenticate.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "unauthenticated"})
}
