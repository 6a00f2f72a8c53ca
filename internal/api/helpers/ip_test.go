package helpers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/novaline-edu/enrollgate/internal/api/helpers"
)

func TestGetRealIP_PrefersXForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	req.RemoteAddr = "10.0.0.1:12345"

	assert.Equal(t, "203.0.113.5", helpers.GetRealIP(req).String())
}

func TestGetRealIP_FallsBackToXRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "198.51.100.9")
	req.RemoteAddr = "10.0.0.1:12345"

	assert.Equal(t, "198.51.100.9", helpers.GetRealIP(req).String())
}

func TestGetRealIP_FallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:54321"

	assert.Equal(t, "192.0.2.7", helpers.GetRealIP(req).String())
}

func TestGetRealIP_IgnoresMalformedForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "not-an-ip")
	req.RemoteAddr = "192.0.2.7:54321"

	assert.Equal(t, "192.0.2.7", helpers.GetRealIP(req).String())
}
