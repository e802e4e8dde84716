package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/rbac"
	"github.com/cbt-exam/cbtexam/internal/users"
)

type fakeAccounts map[string]users.User

func (f fakeAccounts) Authenticate(_ context.Context, username, password string) (users.User, error) {
	u, ok := f[username]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	if password != "pw" {
		return users.User{}, users.ErrBadPassword
	}
	return u, nil
}

func (f fakeAccounts) GetByID(_ context.Context, id string) (users.User, error) {
	for _, u := range f {
		if u.ID == id {
			return u, nil
		}
	}
	return users.User{}, users.ErrNotFound
}

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("secret", time.Hour)
	tok, err := a.IssueJWT("u1", "teacher")
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", c.Subject)
	assert.Equal(t, "teacher", c.Role)

	_, err = NewAuthService("other", time.Hour).Parse(tok)
	require.Error(t, err)

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = a.Parse(tok)
	require.Error(t, err, "expired")
}

func TestNonces(t *testing.T) {
	a := NewAuthService("secret", time.Hour)
	n, err := a.IssueNonce("u1", "submit_exam", "e1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, a.VerifyNonce(n, "u1", "submit_exam", "e1"))
	require.ErrorIs(t, a.VerifyNonce(n, "u2", "submit_exam", "e1"), ErrNonceMismatch)
	require.ErrorIs(t, a.VerifyNonce(n, "u1", "download_certificate", "e1"), ErrNonceMismatch)
	require.ErrorIs(t, a.VerifyNonce(n, "u1", "submit_exam", "e2"), ErrNonceMismatch)
	require.Error(t, a.VerifyNonce("", "u1", "submit_exam", "e1"))

	_, err = a.Parse(n)
	require.Error(t, err, "a nonce is not an access token")

	access, err := a.IssueJWT("u1", "student")
	require.NoError(t, err)
	require.Error(t, a.VerifyNonce(access, "u1", "", ""), "an access token is not a nonce")

	sub, err := a.NonceSubject(n)
	require.NoError(t, err)
	assert.Equal(t, "u1", sub)
	_, err = a.NonceSubject(access)
	require.Error(t, err)

	a.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	require.Error(t, a.VerifyNonce(n, "u1", "submit_exam", "e1"))
	_, err = a.NonceSubject(n)
	require.Error(t, err)
}

func TestLoginHandler(t *testing.T) {
	a := NewAuthService("secret", time.Hour)
	h := LoginHandler(a, fakeAccounts{"ada": {ID: "s1", Username: "ada", Role: users.RoleStudent}}, zap.NewNop())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"ada","password":"pw"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	c, err := a.Parse(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "s1", c.Subject)
	assert.Equal(t, users.RoleStudent, c.Role)

	for _, in := range []string{`{"username":"ada","password":"no"}`, `{"username":"eve","password":"pw"}`} {
		rec = httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(in)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJWTMiddlewareAndAttachRole(t *testing.T) {
	a := NewAuthService("secret", time.Hour)
	accounts := fakeAccounts{"ada": {ID: "s1", Username: "ada", Role: users.RoleTeacher}}
	var gotSub, gotRole string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = SubjectFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	})
	h := JWTMiddleware(a)(AttachRoleFromDB(accounts, zap.NewNop())(inner))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := a.IssueJWT("s1", users.RoleStudent)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", gotSub)
	assert.Equal(t, users.RoleTeacher, gotRole, "stored role wins over the token's")

	tok, err = a.IssueJWT("ghost", users.RoleAdmin)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
