package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesEscapeAndIncludeLink(t *testing.T) {
	msg, err := Activation("a@example.com", LinkData{
		Name:      "<b>Ann</b>",
		Link:      "https://app.test/activate/abc/def",
		ExpiresIn: "72h",
	})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", msg.To)
	assert.Contains(t, msg.HTML, "https://app.test/activate/abc/def")
	assert.Contains(t, msg.HTML, "&lt;b&gt;Ann&lt;/b&gt;")

	for _, build := range []func(string, LinkData) (Message, error){PasswordReset, EmailChange} {
		m, err := build("b@example.com", LinkData{Link: "https://x"})
		require.NoError(t, err)
		assert.NotEmpty(t, m.Subject)
	}
}

func TestDisabledSenderIsNoop(t *testing.T) {
	s := New(Config{Enable: false, Host: "127.0.0.1", Port: 1})
	assert.NoError(t, s.Send(context.Background(), Message{To: "a@example.com"}))
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Send(context.Background(), Message{To: "x@y.z"}))
	assert.Len(t, r.Messages(), 1)
}
