package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWith(p *Principal) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		req = req.WithContext(context.WithValue(req.Context(), PrincipalKey, *p))
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name string
		p    *Principal
		want int
	}{
		{"provider allowed", &Principal{Role: RoleProvider}, http.StatusOK},
		{"admin always allowed", &Principal{Role: RoleAdmin}, http.StatusOK},
		{"patient denied", &Principal{Role: RolePatient}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireRole(RoleProvider)(ok)(contextWith(tt.p))
			if tt.want == http.StatusOK {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			httpErr, isHTTP := err.(*echo.HTTPError)
			if !isHTTP {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, httpErr.Code)
			}
		})
	}
}

func TestRequireVerified(t *testing.T) {
	if err := RequireVerified()(ok)(contextWith(&Principal{Role: RoleProvider, Verified: true})); err != nil {
		t.Errorf("expected verified provider to pass, got %v", err)
	}
	if err := RequireVerified()(ok)(contextWith(&Principal{Role: RoleAdmin})); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
	err := RequireVerified()(ok)(contextWith(&Principal{Role: RoleProvider}))
	httpErr, isHTTP := err.(*echo.HTTPError)
	if !isHTTP || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403 for unverified provider, got %v", err)
	}
}
