package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"chaperone/pkg/requestcontext"
)

func TestDeviceLabel(t *testing.T) {
	assert.Equal(t, "", DeviceLabel(""))
	assert.Equal(t, "Firefox on Linux",
		DeviceLabel("Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"))
	assert.Equal(t, "bot",
		DeviceLabel("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"))
}

func TestClientMetadata(t *testing.T) {
	var got string
	h := ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = requestcontext.Device(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "Firefox on Linux", got)
}
