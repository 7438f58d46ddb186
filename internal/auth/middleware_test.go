package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeborglin-coder/mr-broker/internal/tenant"
)

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	m := NewJWTMiddleware("secret")
	var gotTenant string
	var gotAdmin bool
	h := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = tenant.IDFromContext(r.Context())
		gotAdmin = tenant.IsAdmin(r.Context())
		assert.NotNil(t, ClaimsFromContext(r.Context()))
	}))

	scoped, err := m.Issue("u1", "acme", "", time.Hour)
	require.NoError(t, err)
	rec := serve(h, scoped)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", gotTenant)
	assert.False(t, gotAdmin)

	admin, err := m.Issue("ops", "", RoleAdmin, time.Hour)
	require.NoError(t, err)
	rec = serve(h, admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotAdmin)
}

func TestAuthenticate_Rejects(t *testing.T) {
	m := NewJWTMiddleware("secret")
	h := m.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run")
	}))

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "garbage").Code)

	expired, _ := m.Issue("u1", "acme", "", -time.Minute)
	assert.Equal(t, http.StatusUnauthorized, serve(h, expired).Code)

	other, _ := NewJWTMiddleware("other").Issue("u1", "acme", "", time.Hour)
	assert.Equal(t, http.StatusUnauthorized, serve(h, other).Code)

	unscoped, _ := m.Issue("u1", "", "", time.Hour)
	assert.Equal(t, http.StatusForbidden, serve(h, unscoped).Code)
}

func TestRequireAdmin(t *testing.T) {
	m := NewJWTMiddleware("secret")
	h := m.Authenticate(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	scoped, _ := m.Issue("u1", "acme", "", time.Hour)
	assert.Equal(t, http.StatusForbidden, serve(h, scoped).Code)

	admin, _ := m.Issue("ops", "", RoleAdmin, time.Hour)
	assert.Equal(t, http.StatusNoContent, serve(h, admin).Code)
}
