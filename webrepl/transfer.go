package webrepl

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// TransferState represents the current state of the transfer engine.
type TransferState int

const (
	// StateIdle means no transfer is in flight. Binary messages
	// arriving in this state belong to other traffic and are ignored.
	StateIdle TransferState = iota

	// StatePutAwaitInitialAck means a PUT request frame was sent and
	// the engine is waiting for the device to accept the upload.
	StatePutAwaitInitialAck

	// StatePutAwaitFinalAck means all chunks were sent and the engine
	// is waiting for the final status.
	StatePutAwaitFinalAck

	// StateGetAwaitInitialAck means a GET request frame was sent and
	// the engine is waiting for the device to accept the download.
	StateGetAwaitInitialAck

	// StateGetStreaming means the device is sending chunk messages.
	StateGetStreaming

	// StateGetAwaitFinalAck means the end-of-file chunk arrived and
	// the engine is waiting for the final status.
	StateGetAwaitFinalAck

	// StateVersionAwaitResponse means a GET_VER query was sent.
	StateVersionAwaitResponse
)

// stateNames provides human-readable names for transfer states.
// Used for debugging and logging.
var stateNames = []string{
	"IDLE",
	"PUT_AWAIT_INITIAL_ACK",
	"PUT_AWAIT_FINAL_ACK",
	"GET_AWAIT_INITIAL_ACK",
	"GET_STREAMING",
	"GET_AWAIT_FINAL_ACK",
	"VERSION_AWAIT_RESPONSE",
}

// String returns the human-readable name for a transfer state.
// Returns "UNKNOWN" for invalid states.
func (s TransferState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// ResultKind identifies which operation a Result reports on.
type ResultKind int

const (
	// ResultPut reports a completed or failed upload.
	ResultPut ResultKind = iota

	// ResultGet reports a completed or failed download.
	ResultGet

	// ResultVersion reports a version query response.
	ResultVersion
)

// Result is the single completion report the engine emits per transfer
// attempt. On success Err is nil and Bytes carries the transferred
// byte count (and Data the received bytes for GET, or the raw version
// payload for GET_VER). On failure Err carries the error kind and no
// byte count is guaranteed.
type Result struct {
	Kind     ResultKind
	Filename string
	Bytes    int
	Data     []byte
	Err      error
}

// Engine is the transfer state machine. It is purely reactive: it
// performs no I/O and holds no goroutine. Callers feed it every binary
// message arriving on the transport via HandleBinary, send whatever
// outbound messages it returns (in order), and act on the Result it
// emits when a transfer reaches a terminal state.
//
// Exactly one transfer may be in flight. The engine relies on the
// transport delivering messages in FIFO order; it has no sequence
// numbers of its own. It also has no timeouts: a device that never
// responds leaves the engine in a non-idle state until the caller
// calls Abort.
//
// Engine is not safe for concurrent use; the owner must serialize
// Start* and HandleBinary calls.
type Engine struct {
	state    TransferState
	filename string

	// PUT: pending upload bytes and the chunking cursor
	putData []byte
	offset  int

	// GET: accumulated download bytes
	recvBuf []byte

	log *logrus.Logger
}

// NewEngine creates an idle transfer engine.
func NewEngine() *Engine {
	return &Engine{
		state: StateIdle,
		log:   logrus.StandardLogger(),
	}
}

// SetLogger replaces the engine's logger.
func (e *Engine) SetLogger(log *logrus.Logger) {
	if log != nil {
		e.log = log
	}
}

// State returns the current transfer state.
func (e *Engine) State() TransferState {
	return e.state
}

// BytesReceived returns the number of payload bytes accumulated so far
// by an in-flight GET.
func (e *Engine) BytesReceived() int {
	return len(e.recvBuf)
}

// StartPut begins an upload of data to the given remote filename and
// returns the request frame to send. It fails with ErrBusy if a
// transfer is already in flight, leaving that transfer untouched, and
// with a codec error if the filename or size is unencodable.
func (e *Engine) StartPut(filename string, data []byte) ([]byte, error) {
	if e.state != StateIdle {
		return nil, NewStateError(ErrBusy, "cannot start PUT", e.state)
	}
	frame, err := EncodePutRequest(filename, int64(len(data)))
	if err != nil {
		return nil, err
	}

	e.state = StatePutAwaitInitialAck
	e.filename = filename
	e.putData = data
	e.offset = 0

	e.log.WithFields(logrus.Fields{
		"op":       OpPutFile,
		"filename": filename,
		"size":     len(data),
	}).Info("starting upload")

	return frame, nil
}

// StartGet begins a download of the given remote filename and returns
// the request frame to send. It fails with ErrBusy if a transfer is
// already in flight, leaving that transfer untouched.
func (e *Engine) StartGet(filename string) ([]byte, error) {
	if e.state != StateIdle {
		return nil, NewStateError(ErrBusy, "cannot start GET", e.state)
	}
	frame, err := EncodeGetRequest(filename)
	if err != nil {
		return nil, err
	}

	e.state = StateGetAwaitInitialAck
	e.filename = filename
	e.recvBuf = nil

	e.log.WithFields(logrus.Fields{
		"op":       OpGetFile,
		"filename": filename,
	}).Info("starting download")

	return frame, nil
}

// StartVersionQuery begins a firmware version query and returns the
// request frame to send. It fails with ErrBusy if a transfer is
// already in flight.
func (e *Engine) StartVersionQuery() ([]byte, error) {
	if e.state != StateIdle {
		return nil, NewStateError(ErrBusy, "cannot start version query", e.state)
	}
	e.state = StateVersionAwaitResponse
	e.log.WithField("op", OpGetVersion).Debug("querying version")
	return EncodeVersionRequest(), nil
}

// Abort discards the in-flight transfer, if any, and forces the engine
// back to idle. The device is not notified; the protocol has no cancel
// message, so the remote side may still be mid-transfer.
func (e *Engine) Abort() {
	if e.state == StateIdle {
		return
	}
	e.log.WithField("state", e.state).Info("aborting transfer")
	e.reset()
}

// HandleBinary consumes one binary transport message. It returns the
// outbound messages to send in response, in order, and a non-nil
// Result when the message completed or failed the in-flight transfer.
//
// Messages arriving while idle are not an error: they belong to other
// traffic on the connection and are ignored without side effects.
func (e *Engine) HandleBinary(msg []byte) ([][]byte, *Result) {
	switch e.state {
	case StateIdle:
		return nil, nil
	case StatePutAwaitInitialAck:
		return e.handlePutInitialAck(msg)
	case StatePutAwaitFinalAck:
		return nil, e.handleFinalAck(msg, ResultPut, len(e.putData), nil)
	case StateGetAwaitInitialAck:
		return e.handleGetInitialAck(msg)
	case StateGetStreaming:
		return e.handleGetChunk(msg)
	case StateGetAwaitFinalAck:
		return nil, e.handleFinalAck(msg, ResultGet, len(e.recvBuf), e.recvBuf)
	case StateVersionAwaitResponse:
		return nil, e.handleVersionResponse(msg)
	default:
		return nil, nil
	}
}

// handlePutInitialAck waits for the device to accept the upload, then
// emits the whole payload as chunk messages in one burst. The protocol
// acks only the final chunk, not intermediate ones.
func (e *Engine) handlePutInitialAck(msg []byte) ([][]byte, *Result) {
	if result := e.checkAck(msg, ResultPut); result != nil {
		return nil, result
	}

	var chunks [][]byte
	for e.offset < len(e.putData) {
		end := e.offset + ChunkSize
		if end > len(e.putData) {
			end = len(e.putData)
		}
		chunks = append(chunks, e.putData[e.offset:end])
		e.offset = end
	}
	e.state = StatePutAwaitFinalAck

	e.log.WithFields(logrus.Fields{
		"filename": e.filename,
		"chunks":   len(chunks),
		"bytes":    e.offset,
	}).Debug("upload accepted, sent all chunks")

	return chunks, nil
}

// handleGetInitialAck waits for the device to accept the download and
// acks to request the first chunk.
func (e *Engine) handleGetInitialAck(msg []byte) ([][]byte, *Result) {
	if result := e.checkAck(msg, ResultGet); result != nil {
		return nil, result
	}
	e.state = StateGetStreaming
	e.log.WithField("filename", e.filename).Debug("download accepted")
	return [][]byte{ackByte}, nil
}

// handleGetChunk consumes one chunk message. Each transport message
// must carry exactly one whole chunk; a length prefix that disagrees
// with the message size means the transport fragmented or merged
// chunks, which the protocol cannot recover from.
func (e *Engine) handleGetChunk(msg []byte) ([][]byte, *Result) {
	length, payloadOffset, err := DecodeChunkHeader(msg)
	if err != nil {
		return nil, e.fail(ResultGet, err)
	}
	if len(msg) != payloadOffset+length {
		return nil, e.fail(ResultGet, NewStateError(ErrChunkMismatch,
			fmt.Sprintf("chunk declares %d payload bytes, message carries %d",
				length, len(msg)-payloadOffset), e.state))
	}

	if length == 0 {
		// End-of-file marker. The terminal status comes from the
		// device in the next message; no ack is sent for this chunk.
		e.state = StateGetAwaitFinalAck
		e.log.WithFields(logrus.Fields{
			"filename": e.filename,
			"bytes":    len(e.recvBuf),
		}).Debug("end of file, awaiting final status")
		return nil, nil
	}

	e.recvBuf = append(e.recvBuf, msg[payloadOffset:]...)
	return [][]byte{ackByte}, nil
}

// handleFinalAck consumes the terminal status for a PUT or GET and
// reports the completed transfer either way.
func (e *Engine) handleFinalAck(msg []byte, kind ResultKind, bytes int, data []byte) *Result {
	if result := e.checkAck(msg, kind); result != nil {
		return result
	}

	result := &Result{
		Kind:     kind,
		Filename: e.filename,
		Bytes:    bytes,
		Data:     data,
	}
	e.log.WithFields(logrus.Fields{
		"filename": result.Filename,
		"bytes":    result.Bytes,
	}).Info("transfer complete")
	e.reset()
	return result
}

// handleVersionResponse reports the raw query payload. The device
// sends a single response with no status code for version queries.
func (e *Engine) handleVersionResponse(msg []byte) *Result {
	data := make([]byte, len(msg))
	copy(data, msg)
	e.reset()
	return &Result{Kind: ResultVersion, Data: data, Bytes: len(data)}
}

// checkAck decodes a status response and returns a failure Result on a
// malformed frame or a nonzero status, resetting the engine. A nil
// return means status OK.
func (e *Engine) checkAck(msg []byte, kind ResultKind) *Result {
	status, err := DecodeResponse(msg)
	if err != nil {
		return e.fail(kind, err)
	}
	if status != statusOK {
		return e.fail(kind, NewStateError(ErrRemoteRejected,
			fmt.Sprintf("device returned status %d", status), e.state))
	}
	return nil
}

// fail aborts the in-flight transfer and builds its failure report.
// All aborts are terminal: the caller must start a fresh transfer to
// retry.
func (e *Engine) fail(kind ResultKind, err error) *Result {
	result := &Result{
		Kind:     kind,
		Filename: e.filename,
		Err:      err,
	}
	e.log.WithFields(logrus.Fields{
		"filename": e.filename,
		"state":    e.state,
		"error":    err,
	}).Error("transfer failed")
	e.reset()
	return result
}

// reset releases the session buffers and returns the engine to idle.
func (e *Engine) reset() {
	e.state = StateIdle
	e.filename = ""
	e.putData = nil
	e.offset = 0
	e.recvBuf = nil
}
