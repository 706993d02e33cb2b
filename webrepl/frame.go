package webrepl

import (
	"encoding/binary"
	"fmt"
)

// Request frame layout, all integers little-endian:
//
//	offset  0-1   signature "WA"
//	offset  2     opcode
//	offset  3     reserved flag (0)
//	offset  4-11  reserved (zero)
//	offset 12-15  file size (PUT only, zero otherwise)
//	offset 16-17  filename length
//	offset 18-81  filename, null-padded to 64 bytes
//
// Response frame: signature "WB" followed by a little-endian uint16
// status code. GET data arrives as chunk messages: a little-endian
// uint16 payload length followed by that many bytes; length zero marks
// end of file.

// EncodePutRequest builds the request frame announcing an upload of
// size bytes to the given remote filename.
//
// Filenames longer than the 64-byte field are rejected with
// ErrFilenameTooLong rather than silently truncated. Sizes that do not
// fit the 32-bit size field are rejected with ErrSizeOverflow.
func EncodePutRequest(filename string, size int64) ([]byte, error) {
	if size < 0 || size > 0xFFFFFFFF {
		return nil, NewError(ErrSizeOverflow, fmt.Sprintf("file size %d exceeds 32-bit size field", size))
	}
	return encodeRequest(OpPutFile, filename, uint32(size))
}

// EncodeGetRequest builds the request frame asking the device to send
// back the given remote filename. The size field is zero.
func EncodeGetRequest(filename string) ([]byte, error) {
	return encodeRequest(OpGetFile, filename, 0)
}

// EncodeVersionRequest builds the request frame querying the device
// firmware version. The filename and size fields are zero.
func EncodeVersionRequest() []byte {
	// An empty filename can never fail validation.
	frame, _ := encodeRequest(OpGetVersion, "", 0)
	return frame
}

func encodeRequest(op Opcode, filename string, size uint32) ([]byte, error) {
	name := []byte(filename)
	if len(name) > FilenameFieldSize {
		return nil, NewError(ErrFilenameTooLong,
			fmt.Sprintf("filename %q is %d bytes, limit is %d", filename, len(name), FilenameFieldSize))
	}

	frame := make([]byte, RequestFrameSize)
	copy(frame[0:2], RequestSignature)
	frame[2] = byte(op)
	// frame[3] reserved flag, frame[4:12] reserved, all zero
	binary.LittleEndian.PutUint32(frame[sizeOffset:], size)
	binary.LittleEndian.PutUint16(frame[fnameLenOffset:], uint16(len(name)))
	copy(frame[fnameOffset:], name)

	return frame, nil
}

// DecodeResponse parses a status response frame and returns its status
// code. It fails with ErrInvalidFrame if the buffer is shorter than 4
// bytes or the signature does not match. Bytes beyond the status field
// are ignored.
func DecodeResponse(buf []byte) (uint16, error) {
	if len(buf) < responseFrameSize {
		return 0, NewError(ErrInvalidFrame, fmt.Sprintf("response truncated at %d bytes", len(buf)))
	}
	if string(buf[0:2]) != ResponseSignature {
		return 0, NewError(ErrInvalidFrame,
			fmt.Sprintf("bad response signature %02x %02x", buf[0], buf[1]))
	}
	return binary.LittleEndian.Uint16(buf[2:4]), nil
}

// DecodeChunkHeader parses the length prefix of a GET chunk message and
// returns the declared payload length and the offset at which the
// payload starts. It fails with ErrInvalidFrame if fewer than 2 bytes
// are present.
func DecodeChunkHeader(buf []byte) (length, payloadOffset int, err error) {
	if len(buf) < chunkHeaderSize {
		return 0, 0, NewError(ErrInvalidFrame, fmt.Sprintf("chunk header truncated at %d bytes", len(buf)))
	}
	return int(binary.LittleEndian.Uint16(buf[0:2])), chunkHeaderSize, nil
}
