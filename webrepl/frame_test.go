package webrepl

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePutRequestLayout(t *testing.T) {
	frame, err := EncodePutRequest("main.py", 0x11223344)
	require.NoError(t, err)
	require.Len(t, frame, RequestFrameSize)

	assert.Equal(t, "WA", string(frame[0:2]))
	assert.Equal(t, byte(OpPutFile), frame[2])
	assert.Equal(t, byte(0), frame[3])
	assert.Equal(t, make([]byte, 8), frame[4:12], "reserved bytes must be zero")
	assert.Equal(t, uint32(0x11223344), binary.LittleEndian.Uint32(frame[12:16]))
	assert.Equal(t, uint16(len("main.py")), binary.LittleEndian.Uint16(frame[16:18]))
	assert.Equal(t, "main.py", string(frame[18:18+len("main.py")]))
	assert.Equal(t, make([]byte, 64-len("main.py")), frame[18+len("main.py"):],
		"filename field must be null-padded")
}

func TestEncodeGetRequestLayout(t *testing.T) {
	frame, err := EncodeGetRequest("boot.py")
	require.NoError(t, err)
	require.Len(t, frame, RequestFrameSize)

	assert.Equal(t, "WA", string(frame[0:2]))
	assert.Equal(t, byte(OpGetFile), frame[2])
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(frame[12:16]), "GET size field must be zero")
	assert.Equal(t, uint16(len("boot.py")), binary.LittleEndian.Uint16(frame[16:18]))
	assert.Equal(t, "boot.py", string(frame[18:18+len("boot.py")]))
}

func TestEncodeVersionRequest(t *testing.T) {
	frame := EncodeVersionRequest()
	require.Len(t, frame, RequestFrameSize)

	assert.Equal(t, "WA", string(frame[0:2]))
	assert.Equal(t, byte(OpGetVersion), frame[2])
	assert.Equal(t, make([]byte, RequestFrameSize-3), frame[3:],
		"version query carries no size or filename")
}

func TestEncodeFilenameLimits(t *testing.T) {
	exact := strings.Repeat("a", FilenameFieldSize)
	frame, err := EncodePutRequest(exact, 1)
	require.NoError(t, err, "64-byte filename must encode")
	assert.Equal(t, uint16(64), binary.LittleEndian.Uint16(frame[16:18]))
	assert.Equal(t, exact, string(frame[18:82]), "64-byte filename fills the field with no padding")

	over := strings.Repeat("a", FilenameFieldSize+1)
	_, err = EncodePutRequest(over, 1)
	requireErrorType(t, err, ErrFilenameTooLong)

	_, err = EncodeGetRequest(over)
	requireErrorType(t, err, ErrFilenameTooLong)
}

func TestEncodeMultibyteFilenameLength(t *testing.T) {
	// Length is counted in encoded bytes, not runes.
	name := strings.Repeat("é", 32) // 64 bytes of UTF-8
	frame, err := EncodePutRequest(name, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(64), binary.LittleEndian.Uint16(frame[16:18]))

	_, err = EncodePutRequest(name+"x", 1)
	requireErrorType(t, err, ErrFilenameTooLong)
}

func TestEncodeSizeOverflow(t *testing.T) {
	_, err := EncodePutRequest("big.bin", 1<<32)
	requireErrorType(t, err, ErrSizeOverflow)

	_, err = EncodePutRequest("neg.bin", -1)
	requireErrorType(t, err, ErrSizeOverflow)

	_, err = EncodePutRequest("max.bin", 0xFFFFFFFF)
	assert.NoError(t, err, "largest 32-bit size must encode")
}

func TestDecodeResponseRoundTrip(t *testing.T) {
	for _, status := range []uint16{0, 1, 2, 5, 0x1234, 0xFFFF} {
		got, err := DecodeResponse(responseFrame(status))
		require.NoError(t, err)
		assert.Equal(t, status, got)
	}
}

func TestDecodeResponseTrailingBytesIgnored(t *testing.T) {
	frame := append(responseFrame(0), 0xDE, 0xAD, 0xBE, 0xEF)
	status, err := DecodeResponse(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), status)
}

func TestDecodeResponseInvalid(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"one_byte", []byte{'W'}},
		{"three_bytes", []byte{'W', 'B', 0}},
		{"wrong_signature", []byte{'X', 'X', 0, 0}},
		{"request_signature", []byte{'W', 'A', 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse(tt.buf)
			requireErrorType(t, err, ErrInvalidFrame)
		})
	}
}

func TestDecodeChunkHeader(t *testing.T) {
	length, offset, err := DecodeChunkHeader([]byte{0x05, 0x01, 'x'})
	require.NoError(t, err)
	assert.Equal(t, 0x0105, length)
	assert.Equal(t, 2, offset)

	_, _, err = DecodeChunkHeader([]byte{0x05})
	requireErrorType(t, err, ErrInvalidFrame)

	_, _, err = DecodeChunkHeader(nil)
	requireErrorType(t, err, ErrInvalidFrame)
}

// responseFrame builds a device status response.
func responseFrame(status uint16) []byte {
	frame := make([]byte, 4)
	copy(frame, ResponseSignature)
	binary.LittleEndian.PutUint16(frame[2:], status)
	return frame
}

// chunkMessage builds a device GET chunk message.
func chunkMessage(payload []byte) []byte {
	msg := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(msg, uint16(len(payload)))
	copy(msg[2:], payload)
	return msg
}

// requireErrorType asserts err is a *Error of the given type.
func requireErrorType(t *testing.T, err error, errType ErrorType) {
	t.Helper()
	require.Error(t, err)
	protoErr, ok := err.(*Error)
	require.True(t, ok, "expected *webrepl.Error, got %T: %v", err, err)
	require.Equal(t, errType, protoErr.Type, "unexpected error type: %v", err)
}
