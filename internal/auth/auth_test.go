package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Consult/internal/domain"
)

var doc = domain.Identity{UserID: 10, Role: domain.RoleDoctor, ProfileID: 7}

func TestSignParseRoundTrip(t *testing.T) {
	iss := NewIssuer("secret", "consult")
	tok, err := iss.Sign(doc, time.Minute)
	require.NoError(t, err)

	id, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, doc, id)
}

func TestParseRejects(t *testing.T) {
	iss := NewIssuer("secret", "consult")

	expired, err := iss.Sign(doc, -time.Minute)
	require.NoError(t, err)
	_, err = iss.Parse(expired)
	assert.Error(t, err)

	other, err := NewIssuer("other", "consult").Sign(doc, time.Minute)
	require.NoError(t, err)
	_, err = iss.Parse(other)
	assert.Error(t, err)

	wrongIssuer, err := NewIssuer("secret", "someone-else").Sign(doc, time.Minute)
	require.NoError(t, err)
	_, err = iss.Parse(wrongIssuer)
	assert.Error(t, err)

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: 1, Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "consult", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	})
	s, err := badRole.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = iss.Parse(s)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestEmptySecretAcceptsNothing(t *testing.T) {
	iss := NewIssuer("", "consult")
	_, err := iss.Sign(doc, time.Minute)
	assert.ErrorIs(t, err, ErrNoSecret)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: 1, Role: string(domain.RoleAdmin), ProfileID: 1,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "consult", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	})
	tok, err := forged.SignedString([]byte(""))
	require.NoError(t, err)
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func newEngine(iss *Issuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("test", cookie.NewStore([]byte("k"))))
	g := r.Group("/", Middleware(iss))
	g.POST("/login", func(c *gin.Context) {
		id, _ := FromContext(c)
		_ = SaveSession(c, id)
		c.Status(http.StatusNoContent)
	})
	g.GET("/me", func(c *gin.Context) {
		id, _ := FromContext(c)
		c.JSON(http.StatusOK, id)
	})
	g.GET("/admin", RequireRole(domain.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestMiddlewareBearerAndSession(t *testing.T) {
	iss := NewIssuer("secret", "consult")
	r := newEngine(iss)
	tok, err := iss.Sign(doc, time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":10,"role":"doctor","profile_id":7}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me?access_token="+tok, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
