package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

const testSecret = "test-secret"

func TestJWTResolver(t *testing.T) {
	resolver := NewJWTResolver(testSecret)

	valid, err := SignToken(testSecret, models.Actor{ID: "C", Role: models.RoleSuperAdmin}, time.Hour)
	require.NoError(t, err)
	wrongKey, err := SignToken("other-secret", models.Actor{ID: "C", Role: models.RoleSuperAdmin}, time.Hour)
	require.NoError(t, err)
	expired, err := SignToken(testSecret, models.Actor{ID: "C", Role: models.RoleSuperAdmin}, -time.Minute)
	require.NoError(t, err)
	badRole, err := SignToken(testSecret, models.Actor{ID: "C", Role: "ROOT"}, time.Hour)
	require.NoError(t, err)
	noSubject, err := SignToken(testSecret, models.Actor{Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	lowerRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "B"},
		Role:             "admin",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "B"},
		Role:             "ADMIN",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		want    models.Actor
		wantErr bool
	}{
		{"valid", valid, models.Actor{ID: "C", Role: models.RoleSuperAdmin}, false},
		{"role is case insensitive", lowerRole, models.Actor{ID: "B", Role: models.RoleAdmin}, false},
		{"wrong key", wrongKey, models.Actor{}, true},
		{"expired", expired, models.Actor{}, true},
		{"unknown role", badRole, models.Actor{}, true},
		{"missing subject", noSubject, models.Actor{}, true},
		{"other algorithm", hs512, models.Actor{}, true},
		{"garbage", "not-a-token", models.Actor{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor, err := resolver.Resolve(tt.token)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnauthenticated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, actor)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Authenticate(NewJWTResolver(testSecret), zap.NewNop()))
	r.GET("/whoami", func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, actor)
	})

	token, err := SignToken(testSecret, models.Actor{ID: "A", Role: models.RoleOperator}, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"A","role":"OPERATOR"}`, w.Body.String())

	for _, header := range []string{"", "Basic abc", "Bearer nope"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.Contains(t, w.Body.String(), `"code":"unauthenticated"`)
	}
}
