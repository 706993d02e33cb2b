package webrepl

import "bytes"

// The device runs a plaintext handshake on the console before the
// binary protocol becomes usable: it prints a literal password prompt,
// reads a line, then prints either a connected banner or a denial.
// None of this involves the transfer engine.
const (
	passwordPrompt  = "Password: "
	bannerConnected = "WebREPL connected"
	bannerDenied    = "Access denied"
)

// maxScanTail bounds the bytes kept across messages for prompt
// detection. Long enough to span any marker split over two messages.
const maxScanTail = 64

// authAction is what the session should do with a scanned text message.
type authAction int

const (
	authNone authAction = iota
	authSendPassword
	authReady
	authDenied
)

// authScanner watches console text for the handshake markers. The
// device may split a marker across transport messages, so a bounded
// tail of previous text is kept and rescanned.
type authScanner struct {
	password string
	tail     []byte
	sent     bool
	done     bool
}

// scan consumes one text message and reports the required action.
// After the handshake resolves, all further text is plain console
// traffic and scan always returns authNone.
func (a *authScanner) scan(msg []byte) authAction {
	if a.done {
		return authNone
	}

	a.tail = append(a.tail, msg...)
	if len(a.tail) > maxScanTail {
		a.tail = a.tail[len(a.tail)-maxScanTail:]
	}

	if bytes.Contains(a.tail, []byte(bannerConnected)) {
		a.done = true
		a.tail = nil
		return authReady
	}
	if bytes.Contains(a.tail, []byte(bannerDenied)) {
		a.done = true
		a.tail = nil
		return authDenied
	}
	if !a.sent && bytes.HasSuffix(a.tail, []byte(passwordPrompt)) {
		a.sent = true
		return authSendPassword
	}

	return authNone
}
