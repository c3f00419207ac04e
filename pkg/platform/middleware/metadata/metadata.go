// Package metadata derives client device information from request headers.
package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"chaperone/pkg/requestcontext"
)

// ClientMetadata stores a device label for the request's User-Agent in the context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithDevice(r.Context(), DeviceLabel(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceLabel renders a User-Agent as "<browser> on <os>", "mobile app" style labels
// for bots and unknown agents, or "" when the header is absent.
func DeviceLabel(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return ""
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		return "bot"
	}
	browser, _ := parsed.Browser()
	osName := parsed.OSInfo().Name
	switch {
	case browser != "" && osName != "":
		label := browser + " on " + osName
		if parsed.Mobile() {
			label += " (mobile)"
		}
		return label
	case osName != "":
		return osName
	case browser != "":
		return browser
	default:
		return "unknown"
	}
}
