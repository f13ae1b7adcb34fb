package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func tokens() TokenService {
	return TokenService{Secret: []byte("test-secret"), Issuer: "timetabler", Duration: time.Hour}
}

func TestSignParse(t *testing.T) {
	ts := tokens()
	raw, exp, err := ts.Sign("operator", RoleOperator)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := ts.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, claims.Role)
	assert.Equal(t, "operator", claims.Subject)

	other := ts
	other.Secret = []byte("other")
	_, err = other.Parse(raw)
	assert.Error(t, err)

	other = ts
	other.Issuer = "someone-else"
	_, err = other.Parse(raw)
	assert.Error(t, err)

	expired := ts
	expired.Duration = -time.Minute
	raw, _, err = expired.Sign("operator", RoleOperator)
	require.NoError(t, err)
	_, err = ts.Parse(raw)
	assert.Error(t, err)
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{Role: RoleOperator})
	raw, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = TokenService{Secret: []byte("test-secret")}.Parse(raw)
	assert.Error(t, err)
}

func router(t *testing.T, enabled bool) (*gin.Engine, TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	ts := tokens()
	r := gin.New()
	NewHandler(ts, string(hash), nil).RegisterRoutes(r.Group("/auth"))
	r.POST("/upload", Middleware(ts, enabled), func(c *gin.Context) {
		role := ""
		if claims := MustGetClaims(c); claims != nil {
			role = claims.Role
		}
		c.JSON(http.StatusOK, gin.H{"role": role})
	})
	return r, ts
}

func TestTokenEndpoint(t *testing.T) {
	r, ts := router(t, true)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"password":"correct horse"}`, http.StatusOK},
		{"wrong", `{"password":"battery staple"}`, http.StatusUnauthorized},
		{"empty", `{"password":""}`, http.StatusBadRequest},
		{"not json", `password`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			if tt.status == http.StatusOK {
				var resp struct {
					Token string `json:"token"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				_, err := ts.Parse(resp.Token)
				assert.NoError(t, err)
			}
		})
	}
}

func TestTokenEndpoint_NotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(tokens(), "", nil).RegisterRoutes(r.Group("/auth"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"password":"x"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMiddleware(t *testing.T) {
	r, ts := router(t, true)
	valid, _, err := ts.Sign("operator", RoleOperator)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/upload", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	r, _ := router(t, false)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/upload", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"role":""}`, w.Body.String())
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}
