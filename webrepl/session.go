package webrepl

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MessageWriter sends discrete messages to the device. The transport
// must preserve send order; the protocol has no sequence numbers and
// interprets "the next message" as "the next expected response".
type MessageWriter interface {
	// WriteBinary sends one binary message.
	WriteBinary(data []byte) error

	// WriteText sends one text message.
	WriteText(data []byte) error
}

// Config holds session configuration.
type Config struct {
	// Password is sent in response to the device's password prompt.
	Password string

	// ProgressInterval throttles OnProgress callbacks.
	ProgressInterval time.Duration

	// MaxMessageSize caps inbound transport messages, in bytes.
	// Zero means the transport default.
	MaxMessageSize int64
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		ProgressInterval: 100 * time.Millisecond,
		MaxMessageSize:   1 << 20,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session configuration.
func WithConfig(config *Config) Option {
	return func(s *Session) {
		s.config = config
	}
}

// WithPassword sets the password for the handshake.
func WithPassword(password string) Option {
	return func(s *Session) {
		s.config.Password = password
	}
}

// WithCallbacks sets the session callbacks.
func WithCallbacks(callbacks *Callbacks) Option {
	return func(s *Session) {
		s.callbacks = mergeCallbacks(callbacks)
	}
}

// WithLogger sets a logger for protocol debugging.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
			s.engine.SetLogger(log)
		}
	}
}

// Session is the high-level WebREPL client: it owns the transfer
// engine, the password handshake, and the console plumbing on top of a
// message transport. The transport feeds every inbound message to
// HandleTextMessage or HandleBinaryMessage from a single goroutine;
// the session dispatches each once, at the boundary, to the console
// handler or the transfer engine.
type Session struct {
	w MessageWriter

	config    *Config
	callbacks *Callbacks
	log       *logrus.Logger

	// mu guards the engine and the pending result channel. The engine
	// is mutated only under mu, either by the transport's read
	// goroutine or by a Put/Get/QueryVersion caller.
	mu       sync.Mutex
	engine   *Engine
	pending  chan Result
	progress *ProgressTracker

	// password handshake state, mutated only from the read goroutine
	auth authScanner

	readyOnce sync.Once
	readyCh   chan error

	closeOnce sync.Once
}

// NewSession creates a session on top of a message transport. The
// caller is responsible for feeding inbound messages to
// HandleTextMessage and HandleBinaryMessage in arrival order.
func NewSession(w MessageWriter, opts ...Option) *Session {
	s := &Session{
		w:         w,
		config:    DefaultConfig(),
		callbacks: defaultCallbacks(),
		log:       logrus.StandardLogger(),
		engine:    NewEngine(),
		readyCh:   make(chan error, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.auth.password = s.config.Password
	s.progress = NewProgressTracker(s.callbacks.OnProgress, s.config.ProgressInterval)

	return s
}

// WaitReady blocks until the password handshake completes. It returns
// ErrAccessDenied if the device rejected the password, ErrClosed if
// the connection closed first, or the context error.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case err := <-s.readyCh:
		// Keep the result for later callers.
		s.readyCh <- err
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Put uploads data to the given remote filename and returns the number
// of bytes sent. It blocks until the device reports the terminal
// status or ctx is done; cancellation abandons the transfer locally
// (the device is not notified).
func (s *Session) Put(ctx context.Context, filename string, data []byte) (int, error) {
	result, err := s.transfer(ctx, func() ([]byte, error) {
		s.progress.Start(filename, int64(len(data)))
		return s.engine.StartPut(filename, data)
	})
	if err != nil {
		return 0, err
	}
	return result.Bytes, nil
}

// Get downloads the given remote filename and returns its contents.
// The caller owns persistence; the session never touches storage. It
// blocks until the device reports the terminal status or ctx is done.
func (s *Session) Get(ctx context.Context, filename string) ([]byte, error) {
	result, err := s.transfer(ctx, func() ([]byte, error) {
		s.progress.Start(filename, 0)
		return s.engine.StartGet(filename)
	})
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

// QueryVersion asks the device for its firmware version.
func (s *Session) QueryVersion(ctx context.Context) (Version, error) {
	result, err := s.transfer(ctx, s.engine.StartVersionQuery)
	if err != nil {
		return Version{}, err
	}
	var v Version
	if len(result.Data) >= 3 {
		v = Version{Major: result.Data[0], Minor: result.Data[1], Micro: result.Data[2]}
	}
	return v, nil
}

// transfer runs one blocking transfer: build and send the request
// frame under the session lock, then wait for the engine's terminal
// report. A second transfer while one is in flight fails with ErrBusy
// from the engine without touching the in-flight session.
func (s *Session) transfer(ctx context.Context, start func() ([]byte, error)) (Result, error) {
	s.mu.Lock()
	frame, err := start()
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	ch := make(chan Result, 1)
	s.pending = ch
	s.mu.Unlock()

	if err := s.w.WriteBinary(frame); err != nil {
		s.abandon()
		return Result{}, NewError(ErrClosed, err.Error())
	}

	select {
	case result := <-ch:
		if result.Err != nil {
			return Result{}, result.Err
		}
		return result, nil
	case <-ctx.Done():
		s.abandon()
		return Result{}, ctx.Err()
	}
}

// abandon drops the in-flight transfer and forces the engine idle.
func (s *Session) abandon() {
	s.mu.Lock()
	s.engine.Abort()
	s.pending = nil
	s.mu.Unlock()
}

// HandleBinaryMessage feeds one inbound binary message to the transfer
// engine and sends whatever the engine emits in response. It is called
// by the transport's read goroutine.
func (s *Session) HandleBinaryMessage(msg []byte) {
	s.mu.Lock()
	out, result := s.engine.HandleBinary(msg)
	streaming := s.engine.State() == StateGetStreaming
	received := s.engine.BytesReceived()
	ch := s.pending
	if result != nil {
		s.pending = nil
	}
	s.mu.Unlock()

	for _, frame := range out {
		if err := s.w.WriteBinary(frame); err != nil {
			s.log.WithError(err).Error("failed to send transfer message")
			s.failPending(NewError(ErrClosed, err.Error()))
			return
		}
	}

	if streaming {
		s.progress.Update(int64(received))
	}

	if result != nil {
		if result.Err == nil {
			s.progress.Update(int64(result.Bytes))
		}
		s.progress.Complete()
		if ch != nil {
			ch <- *result
		}
		s.callbacks.OnTransferComplete(*result)
	}
}

// HandleTextMessage forwards one inbound text message to the console
// callback, after letting the password handshake inspect it. It is
// called by the transport's read goroutine.
func (s *Session) HandleTextMessage(msg []byte) {
	switch s.auth.scan(msg) {
	case authSendPassword:
		if err := s.w.WriteText(append([]byte(s.config.Password), '\r')); err != nil {
			s.log.WithError(err).Error("failed to send password")
		}
	case authReady:
		s.log.Info("device console ready")
		s.signalReady(nil)
		s.callbacks.OnReady()
	case authDenied:
		s.log.Warn("device rejected password")
		s.signalReady(NewError(ErrAccessDenied, "device rejected password"))
	}

	s.callbacks.OnConsole(msg)
}

// HandleClosed reports that the transport will deliver no further
// messages. Any in-flight transfer and WaitReady callers fail with
// ErrClosed.
func (s *Session) HandleClosed(err error) {
	s.closeOnce.Do(func() {
		s.failPending(NewError(ErrClosed, "connection closed"))
		s.signalReady(NewError(ErrClosed, "connection closed"))
		s.callbacks.OnClose(err)
	})
}

// failPending aborts the in-flight transfer, if any, and delivers the
// given error to its waiter.
func (s *Session) failPending(err *Error) {
	s.mu.Lock()
	ch := s.pending
	s.pending = nil
	s.engine.Abort()
	s.mu.Unlock()

	if ch != nil {
		ch <- Result{Err: err}
	}
}

func (s *Session) signalReady(err error) {
	s.readyOnce.Do(func() {
		s.readyCh <- err
	})
}

// SendConsole sends raw console input to the device REPL.
func (s *Session) SendConsole(data []byte) error {
	return s.w.WriteText(data)
}

// Interrupt sends Ctrl-C to interrupt the running program.
func (s *Session) Interrupt() error {
	return s.w.WriteText([]byte{CtrlInterrupt})
}

// SoftReset sends Ctrl-D to soft-reset the interpreter.
func (s *Session) SoftReset() error {
	return s.w.WriteText([]byte{CtrlSoftReset})
}

// EnterRawREPL sends Ctrl-A to switch the device into raw REPL mode.
func (s *Session) EnterRawREPL() error {
	return s.w.WriteText([]byte{CtrlRawREPL})
}

// ExitRawREPL sends Ctrl-B to leave raw REPL mode.
func (s *Session) ExitRawREPL() error {
	return s.w.WriteText([]byte{CtrlExitRawREPL})
}

// State returns the transfer engine's current state.
func (s *Session) State() TransferState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.State()
}
