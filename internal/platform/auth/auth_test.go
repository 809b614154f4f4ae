package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"admin", RoleAdmin, true},
		{"doctor", RoleDoctor, true},
		{"patient", RolePatient, true},
		{"Doctor", "", false},
		{"superuser", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseRole(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseRole(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), "healthvault", time.Hour)
	uid := uuid.New()

	tok, expiresAt, err := issuer.Issue(uid, RoleDoctor, "doc@example.com", "default")
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(expiresAt) < 59*time.Minute {
		t.Errorf("unexpected expiry: %v", expiresAt)
	}

	claims, err := issuer.Validate(tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != uid.String() {
		t.Errorf("subject = %q, want %q", claims.Subject, uid)
	}
	if claims.Role != "doctor" {
		t.Errorf("role = %q, want doctor", claims.Role)
	}
	if claims.TenantID != "default" {
		t.Errorf("tenant = %q, want default", claims.TenantID)
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), "healthvault", -time.Minute)
	tok, _, err := issuer.Issue(uuid.New(), RolePatient, "p@example.com", "default")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.Validate(tok); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret-a"), "healthvault", time.Hour)
	other := NewTokenIssuer([]byte("secret-b"), "healthvault", time.Hour)

	tok, _, err := issuer.Issue(uuid.New(), RoleAdmin, "a@example.com", "default")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Validate(tok); err != ErrTokenInvalid {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func okHandler(c echo.Context) error { return c.NoContent(http.StatusOK) }

func doRequest(t *testing.T, mw echo.MiddlewareFunc, setup func(c echo.Context)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setup != nil {
		setup(c)
	}
	if err := mw(okHandler)(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestMiddleware_MissingHeader(t *testing.T) {
	issuer := NewTokenIssuer([]byte("s"), "healthvault", time.Hour)
	rec := doRequest(t, Middleware(issuer), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_ValidToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("s"), "healthvault", time.Hour)
	uid := uuid.New()
	tok, _, err := issuer.Issue(uid, RolePatient, "p@example.com", "clinic_a")
	if err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotID uuid.UUID
	var gotRole Role
	handler := Middleware(issuer)(func(c echo.Context) error {
		gotID = UserIDFromContext(c.Request().Context())
		gotRole = RoleFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatal(err)
	}
	if gotID != uid {
		t.Errorf("user id = %v, want %v", gotID, uid)
	}
	if gotRole != RolePatient {
		t.Errorf("role = %v, want patient", gotRole)
	}
	if tid, _ := c.Get("jwt_tenant_id").(string); tid != "clinic_a" {
		t.Errorf("tenant = %q, want clinic_a", tid)
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name    string
		actor   Role
		allowed []Role
		want    int
	}{
		{"matching role", RoleDoctor, []Role{RoleDoctor}, http.StatusOK},
		{"admin bypass", RoleAdmin, []Role{RoleDoctor}, http.StatusOK},
		{"wrong role", RolePatient, []Role{RoleDoctor}, http.StatusForbidden},
		{"no identity", "", []Role{RoleDoctor}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.actor != "" {
				req = req.WithContext(WithActor(req.Context(), uuid.New(), tc.actor))
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if err := RequireRole(tc.allowed...)(okHandler)(c); err != nil {
				e.HTTPErrorHandler(err, c)
			}
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
