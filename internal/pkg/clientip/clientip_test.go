package clientip

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.7:5123"
	assert.Equal(t, "192.0.2.7", FromRequest(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	assert.Equal(t, "203.0.113.9", FromRequest(r))

	r.Header.Set("X-Forwarded-For", " , 10.0.0.1")
	assert.Equal(t, "192.0.2.7", FromRequest(r))

	r.Header.Del("X-Forwarded-For")
	r.RemoteAddr = "2001:db8::1"
	assert.Equal(t, "2001:db8::1", FromRequest(r))
}
