package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/google/go-cmp/cmp"
)

type stubVerifier struct {
	token *firebaseauth.Token
	err   error
}

func (s stubVerifier) VerifyIDToken(context.Context, string) (*firebaseauth.Token, error) {
	return s.token, s.err
}

func serveAuth(t *testing.T, verifier TokenVerifier, header string, roles ...string) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()
	var identity *Identity
	handler := NewAuthenticator(verifier).RequireUser(roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, identity
}

func TestRequireUserBuildsIdentity(t *testing.T) {
	verifier := stubVerifier{token: &firebaseauth.Token{
		UID:    "user-1",
		Claims: map[string]any{"email": "asha@example.com", "role": []any{"Staff", "staff", ""}},
	}}

	rec, identity := serveAuth(t, verifier, "Bearer token-abc")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := []string{RoleStaff}
	if diff := cmp.Diff(want, identity.Roles); diff != "" {
		t.Fatalf("unexpected roles (-want +got):\n%s", diff)
	}
	if identity.Email != "asha@example.com" || !identity.CanAccess("someone-else") {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestRequireUserDefaultsToUserRole(t *testing.T) {
	rec, identity := serveAuth(t, stubVerifier{token: &firebaseauth.Token{UID: "user-1", Claims: map[string]any{}}}, "Bearer t")
	if rec.Code != http.StatusOK || !identity.HasRole(RoleUser) {
		t.Fatalf("expected plain user identity, got %d %+v", rec.Code, identity)
	}
	if identity.CanAccess("user-2") || !identity.CanAccess(" user-1 ") {
		t.Fatalf("user must only access own resources")
	}
}

func TestRequireUserRejects(t *testing.T) {
	cases := []struct {
		name     string
		verifier TokenVerifier
		header   string
		roles    []string
		status   int
	}{
		{"missing header", stubVerifier{}, "", nil, http.StatusUnauthorized},
		{"wrong scheme", stubVerifier{}, "Basic abc", nil, http.StatusUnauthorized},
		{"invalid token", stubVerifier{err: errors.New("bad signature")}, "Bearer t", nil, http.StatusUnauthorized},
		{"expired token", stubVerifier{err: ErrTokenExpired}, "Bearer t", nil, http.StatusUnauthorized},
		{"role required", stubVerifier{token: &firebaseauth.Token{UID: "u", Claims: map[string]any{}}}, "Bearer t", []string{RoleAdmin}, http.StatusForbidden},
		{"no verifier", nil, "Bearer t", nil, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, identity := serveAuth(t, tc.verifier, tc.header, tc.roles...)
			if rec.Code != tc.status || identity != nil {
				t.Fatalf("expected %d without identity, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestRolesFromClaim(t *testing.T) {
	cases := []struct {
		raw  any
		want []string
	}{
		{"Admin", []string{"admin"}},
		{[]string{"user", "USER"}, []string{"user"}},
		{map[string]any{"staff": true}, []string{"staff"}},
		{map[string]any{"staff": false}, []string{}},
		{42, []string{}},
	}
	for _, tc := range cases {
		got := rolesFromClaim(tc.raw)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("rolesFromClaim(%v) (-want +got):\n%s", tc.raw, diff)
		}
	}
}
