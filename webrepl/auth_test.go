package webrepl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthScannerPromptAndBanner(t *testing.T) {
	a := &authScanner{password: "pw"}

	assert.Equal(t, authNone, a.scan([]byte("WebREPL daemon started on ws://...\r\n")))
	assert.Equal(t, authSendPassword, a.scan([]byte("Password: ")))
	assert.Equal(t, authNone, a.scan([]byte("\r\n")))
	assert.Equal(t, authReady, a.scan([]byte("WebREPL connected\r\n>>> ")))

	// After the handshake, banners in console output are plain text.
	assert.Equal(t, authNone, a.scan([]byte("Password: ")))
	assert.Equal(t, authNone, a.scan([]byte("Access denied")))
}

func TestAuthScannerDenied(t *testing.T) {
	a := &authScanner{password: "pw"}

	assert.Equal(t, authSendPassword, a.scan([]byte("Password: ")))
	assert.Equal(t, authDenied, a.scan([]byte("\r\nAccess denied\r\n")))
	assert.Equal(t, authNone, a.scan([]byte("Password: ")), "handshake is resolved")
}

func TestAuthScannerMarkersSplitAcrossMessages(t *testing.T) {
	a := &authScanner{password: "pw"}

	assert.Equal(t, authNone, a.scan([]byte("Passwo")))
	assert.Equal(t, authSendPassword, a.scan([]byte("rd: ")))
	assert.Equal(t, authNone, a.scan([]byte("\r\nWebREPL conn")))
	assert.Equal(t, authReady, a.scan([]byte("ected\r\n")))
}

func TestAuthScannerTailBounded(t *testing.T) {
	a := &authScanner{password: "pw"}

	// A long noise burst must not defeat prompt detection afterwards.
	noise := make([]byte, 10*maxScanTail)
	for i := range noise {
		noise[i] = 'x'
	}
	assert.Equal(t, authNone, a.scan(noise))
	assert.LessOrEqual(t, len(a.tail), maxScanTail)
	assert.Equal(t, authSendPassword, a.scan([]byte("Password: ")))
}
