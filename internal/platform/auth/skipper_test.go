package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	e := echo.New()
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/api/v1/auth/login", true},
		{"/api/v1/auth/register/patient", true},
		{"/api/v1/doctors/:doctorId/visits", false},
		{"/ws", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetPath(tt.path)
		if got := AuthSkipper(c); got != tt.want {
			t.Errorf("AuthSkipper(%q) = %v, want %v", tt.path, got, tt.want)
		}
		if got := IsPublicPath(tt.path); got != tt.want {
			t.Errorf("IsPublicPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
