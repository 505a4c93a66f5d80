// Package device turns raw User-Agent headers into short labels for audit
// trails and session listings.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Unknown is returned when the header is empty or unparseable.
const Unknown = "Desconocido"

// Label returns "<browser> on <os>", e.g. "Firefox on Linux". Bots are
// labelled with their crawler name.
func Label(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return Unknown
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if ua.Bot() {
		if browser == "" {
			return "bot"
		}
		return "bot: " + browser
	}
	os := ua.OSInfo().Name
	switch {
	case browser == "" && os == "":
		return Unknown
	case os == "":
		return browser
	case browser == "":
		return os
	}
	label := browser + " on " + os
	if ua.Mobile() {
		label += " (mobile)"
	}
	return label
}
