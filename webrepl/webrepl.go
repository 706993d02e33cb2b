// Package webrepl implements the MicroPython WebREPL client protocol.
//
// WebREPL carries an interactive Python console and a small binary
// file-transfer protocol over a single WebSocket connection. Text
// messages belong to the console (including the plaintext password
// handshake); binary messages belong to the file-transfer protocol.
//
// The package is designed as a library that wraps a WebSocket connection
// and provides callback hooks for console output, progress tracking, and
// transfer completion. The transfer protocol itself is implemented as a
// pure state machine (Engine) that is driven entirely by incoming
// messages and returns its outbound messages explicitly, so it stays
// free of I/O and UI concerns.
package webrepl

import "fmt"

// Protocol signatures. Every request frame starts with "WA", every
// response frame with "WB".
const (
	// RequestSignature begins every 82-byte request frame.
	RequestSignature = "WA"

	// ResponseSignature begins every status response frame.
	ResponseSignature = "WB"
)

// Opcode identifies the operation requested by an 82-byte request frame.
type Opcode byte

// Request opcodes (byte at offset 2 of the request frame).
const (
	// OpPutFile asks the device to accept a file upload.
	OpPutFile Opcode = 1

	// OpGetFile asks the device to send a file back.
	OpGetFile Opcode = 2

	// OpGetVersion asks the device for its firmware version triple.
	OpGetVersion Opcode = 3
)

// Request frame layout.
const (
	// RequestFrameSize is the fixed size of every request frame.
	RequestFrameSize = 82

	// FilenameFieldSize is the size of the null-padded filename field
	// at the tail of the request frame. Longer names are rejected.
	FilenameFieldSize = 64

	// sizeOffset is the offset of the little-endian uint32 file size.
	sizeOffset = 12

	// fnameLenOffset is the offset of the little-endian uint16
	// filename length.
	fnameLenOffset = 16

	// fnameOffset is the offset of the filename field.
	fnameOffset = 18
)

// Transfer parameters.
const (
	// ChunkSize is the maximum payload carried by one outbound PUT
	// message. The device acks only the initial request and the final
	// chunk, never individual chunks.
	ChunkSize = 1024

	// responseFrameSize is the minimum length of a parsable status
	// response: 2 signature bytes plus a uint16 status.
	responseFrameSize = 4

	// chunkHeaderSize is the uint16 length prefix on every inbound
	// GET chunk.
	chunkHeaderSize = 2

	// statusOK is the status code the device sends on success.
	statusOK = 0
)

// ackByte is the single-byte acknowledgment the client sends after
// consuming a non-empty GET chunk.
var ackByte = []byte{0}

// Console control bytes understood by the MicroPython REPL. These are
// sent as one-byte text messages outside the binary protocol.
const (
	// CtrlRawREPL enters raw REPL mode.
	CtrlRawREPL = 0x01

	// CtrlExitRawREPL leaves raw REPL mode.
	CtrlExitRawREPL = 0x02

	// CtrlInterrupt interrupts the running program (KeyboardInterrupt).
	CtrlInterrupt = 0x03

	// CtrlSoftReset soft-resets the interpreter.
	CtrlSoftReset = 0x04
)

// opcodeNames provides human-readable names for opcodes.
// Used for logging.
var opcodeNames = map[Opcode]string{
	OpPutFile:    "PUT_FILE",
	OpGetFile:    "GET_FILE",
	OpGetVersion: "GET_VER",
}

// String returns the human-readable name for an opcode.
// Returns "UNKNOWN" for unassigned opcodes.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// Version is the firmware version triple returned by a GET_VER query.
type Version struct {
	Major byte
	Minor byte
	Micro byte
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}
