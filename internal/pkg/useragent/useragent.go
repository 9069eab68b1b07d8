// Package useragent classifies User-Agent strings by device, OS and browser.
package useragent

import (
	"strings"

	uaparser "github.com/mileusna/useragent"
)

// Device classes.
const (
	Mobile  = "Mobile"
	Tablet  = "Tablet"
	Desktop = "Desktop"
	Bot     = "Bot"
	Unknown = "Unknown"
)

// Info is the parsed view of a User-Agent header. OS and Browser hold the
// family followed by its version, e.g. "Android 14" or "Chrome 120.0".
type Info struct {
	Device  string
	OS      string
	Browser string
}

// Bot markers the parser can miss.
var botMarkers = []string{"bot", "facebookexternalhit", "crawler", "spider", "slurp", "headless", "curl/", "wget/", "python-requests", "go-http-client"}

// Parse classifies ua. Device precedence is Mobile, Tablet, Desktop, Bot,
// then Unknown; tablets never count as mobile.
func Parse(ua string) Info {
	p := uaparser.Parse(ua)
	lower := strings.ToLower(ua)
	info := Info{
		OS:      withVersion(p.OS, p.OSVersion),
		Browser: withVersion(p.Name, p.Version),
	}

	bot := p.Bot || isBot(lower)
	tablet := p.Tablet || isAndroidTablet(lower)
	switch {
	case !tablet && !bot && p.Mobile:
		info.Device = Mobile
	case tablet && !bot:
		info.Device = Tablet
	case p.Desktop && !bot:
		info.Device = Desktop
	case bot:
		info.Device = Bot
	default:
		info.Device = Unknown
	}
	return info
}

func withVersion(family, version string) string {
	if family == "" {
		return "Other"
	}
	return strings.TrimSpace(family + " " + version)
}

// Android tablets omit the "mobile" token.
func isAndroidTablet(lower string) bool {
	return strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")
}

func isBot(lower string) bool {
	for _, m := range botMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
