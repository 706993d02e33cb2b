package webrepl

// Callbacks provides hooks for session events.
// All callbacks are optional - nil callbacks use default behavior.
//
// Callbacks are invoked from the connection's read goroutine; they must
// not block, or they stall message delivery for the whole session.
type Callbacks struct {
	// OnConsole is called with every text message the device sends,
	// including the banner and prompt traffic seen during the password
	// handshake. This is the interactive REPL output.
	OnConsole func(data []byte)

	// OnProgress is called periodically during a transfer.
	// filename: name of the file being transferred
	// transferred: bytes transferred so far
	// total: total bytes to transfer (0 if unknown, as for GET)
	// rate: transfer rate in bytes per second
	OnProgress func(filename string, transferred, total int64, rate float64)

	// OnTransferComplete is called once per transfer attempt with the
	// terminal report, successful or not.
	OnTransferComplete func(result Result)

	// OnReady is called once the password handshake has succeeded and
	// the device console is available.
	OnReady func()

	// OnClose is called when the connection closes. err is nil for a
	// clean local close.
	OnClose func(err error)
}

// defaultCallbacks returns a set of callbacks with default implementations.
func defaultCallbacks() *Callbacks {
	return &Callbacks{
		OnConsole:          func([]byte) {},
		OnProgress:         func(string, int64, int64, float64) {},
		OnTransferComplete: func(Result) {},
		OnReady:            func() {},
		OnClose:            func(error) {},
	}
}

// mergeCallbacks merges user callbacks with defaults.
// User callbacks override defaults, nil callbacks use defaults.
func mergeCallbacks(user *Callbacks) *Callbacks {
	if user == nil {
		return defaultCallbacks()
	}

	result := defaultCallbacks()

	if user.OnConsole != nil {
		result.OnConsole = user.OnConsole
	}
	if user.OnProgress != nil {
		result.OnProgress = user.OnProgress
	}
	if user.OnTransferComplete != nil {
		result.OnTransferComplete = user.OnTransferComplete
	}
	if user.OnReady != nil {
		result.OnReady = user.OnReady
	}
	if user.OnClose != nil {
		result.OnClose = user.OnClose
	}

	return result
}
