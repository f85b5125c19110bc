package service_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/mailleopard-backend/internal/service"
)

func TestAddTracking(t *testing.T) {
	base := "https://api.example"
	html := `<HTML><BODY><a href="https://shop.example/a?x=1">A</a> <a href="https://api.example/t/u/9">Unsub</a> <a href="mailto:x@y.z">Mail</a></BODY></HTML>`

	out := service.AddTracking(html, base, 9)

	assert.Contains(t, out, `href="https://api.example/t/c/9?url=https%3A%2F%2Fshop.example%2Fa%3Fx%3D1"`)
	assert.Contains(t, out, `href="https://api.example/t/u/9"`)
	assert.Contains(t, out, `href="mailto:x@y.z"`)
	assert.True(t, strings.HasSuffix(out, `style="display:none" /></BODY></HTML>`))
	assert.Equal(t, 1, strings.Count(out, "/t/o/9"))
}

func TestAddTrackingWithoutBody(t *testing.T) {
	out := service.AddTracking("<p>plain</p>", "https://api.example", 3)
	assert.True(t, strings.HasPrefix(out, "<p>plain</p><img src=\"https://api.example/t/o/3\""))
}

func TestDeviceType(t *testing.T) {
	tests := map[string]string{
		"":                                       "unknown",
		"Mozilla/5.0 (iPad; CPU OS 17_0)":        "tablet",
		"Mozilla/5.0 (Linux; Android 14) Mobile": "mobile",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17)": "mobile",
		"Mozilla/5.0 (Windows NT 10.0; Win64)":   "desktop",
	}
	for ua, want := range tests {
		assert.Equal(t, want, service.DeviceType(ua), ua)
	}
}
