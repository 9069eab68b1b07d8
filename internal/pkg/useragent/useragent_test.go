package useragent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name, ua       string
		device         string
		os, osVersion  string
		brow, browVers string
	}{
		{"iphone safari", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", Mobile, "iOS", "17", "Safari", "17"},
		{"android phone", "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.43 Mobile Safari/537.36", Mobile, "Android", "14", "Chrome", "120"},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1", Tablet, "iOS", "16", "Safari", "16"},
		{"android tablet", "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.43 Safari/537.36", Tablet, "Android", "13", "Chrome", "120"},
		{"windows edge", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.61", Desktop, "Windows", "10", "Edge", "120"},
		{"linux firefox", "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", Desktop, "Linux", "", "Firefox", "121"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := Parse(tc.ua)
			assert.Equal(t, tc.device, info.Device)
			assert.True(t, strings.HasPrefix(info.OS, tc.os), info.OS)
			assert.Contains(t, info.OS, tc.osVersion)
			assert.True(t, strings.HasPrefix(info.Browser, tc.brow), info.Browser)
			assert.Contains(t, info.Browser, tc.browVers)
		})
	}
}

func TestParseBotsAndUnknown(t *testing.T) {
	assert.Equal(t, Bot, Parse("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)").Device)
	assert.Equal(t, Bot, Parse("curl/8.4.0").Device)
	assert.Equal(t, Bot, Parse("python-requests/2.31.0").Device)

	info := Parse("")
	assert.Equal(t, Unknown, info.Device)
	assert.Equal(t, "Other", info.OS)
	assert.Equal(t, "Other", info.Browser)
}
