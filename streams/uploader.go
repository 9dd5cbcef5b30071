// Package streams uploads data into Domo datasets through the Streams API.
//
// The upload client buffers serialized rows from any number of goroutines and
// flushes them as numbered data parts of a stream execution once the buffer
// reaches its configured size. Commit flushes the rest and finalizes the
// execution, after which the client starts a new execution on demand.
package streams

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/domo-pitchfork/go-pitchfork/auth"
)

// DefaultBufferSize is the data part size used when Config.BufferSize is zero.
const DefaultBufferSize = 256 * 1024

// Config configures an upload client.
type Config struct {
	StreamID int64
	// BufferSize is the data part size in bytes that triggers a flush.
	BufferSize int
	Logger     log.Logger
}

// Client uploads rows of type T to a single stream. Copies of a Client share
// the same buffer and execution.
type Client[T any] struct {
	codec Codec[T]
	inner *coordinator
}

// NewClient creates an upload client encoding rows with CSVCodec.
func NewClient[T any](transport Transport, config Config) (Client[T], error) {
	return NewClientWithCodec[T](transport, config, CSVCodec[T]{})
}

// NewClientWithCodec ...
func NewClientWithCodec[T any](transport Transport, config Config, codec Codec[T]) (Client[T], error) {
	if transport == nil {
		return Client[T]{}, errors.New("transport is missing")
	}
	if codec == nil {
		return Client[T]{}, errors.New("codec is missing")
	}
	if config.StreamID <= 0 {
		return Client[T]{}, fmt.Errorf("invalid stream ID: %d", config.StreamID)
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.BufferSize < 0 {
		return Client[T]{}, fmt.Errorf("invalid buffer size: %d", config.BufferSize)
	}
	if config.Logger == nil {
		config.Logger = log.NewLogger()
	}

	return Client[T]{
		codec: codec,
		inner: newCoordinator(transport, config),
	}, nil
}

// NewStreamUploadClient creates an upload client for the public Domo API
// authenticating with client credentials.
func NewStreamUploadClient[T any](streamID int64, clientID, clientSecret string, bufferSize int) (Client[T], error) {
	logger := log.NewLogger()
	tokens, err := auth.NewClientCredentials(auth.ClientCredentialsParams{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Logger:       logger,
	})
	if err != nil {
		return Client[T]{}, err
	}
	transport, err := NewAPIClient(APIClientParams{Tokens: tokens, Logger: logger})
	if err != nil {
		return Client[T]{}, err
	}
	return NewClient[T](transport, Config{StreamID: streamID, BufferSize: bufferSize, Logger: logger})
}

// Upload serializes rows into the buffer. When the buffer reaches the
// configured size it is uploaded as a data part of the current execution,
// which is created first if needed, and the execution is returned.
// A nil Execution means the rows were only buffered.
//
// Bytes taken from the buffer for a failed flush are not restored.
func (c Client[T]) Upload(ctx context.Context, rows []T) (*Execution, error) {
	data, err := c.codec.Encode(rows)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return c.inner.write(ctx, data)
}

// Commit uploads the remaining buffer as the final data part and commits the
// execution, creating one if nothing was flushed yet. On success the next
// Upload starts a new execution.
func (c Client[T]) Commit(ctx context.Context) (Execution, error) {
	return c.inner.commit(ctx)
}

// Abort aborts the active execution and discards the buffer.
// It returns ErrNoActiveExecution without calling the API if no execution
// was started.
func (c Client[T]) Abort(ctx context.Context) (Execution, error) {
	return c.inner.abort(ctx)
}

// ExecutionID returns the ID of the active execution.
func (c Client[T]) ExecutionID() (int64, bool) {
	return c.inner.session.current()
}

// Buffered returns the number of bytes waiting for the next flush.
func (c Client[T]) Buffered() int {
	return c.inner.buffered()
}

// Stats returns the upload statistics.
func (c Client[T]) Stats() *Stats {
	return c.inner.stats
}

// session is the execution slot. Holding mu while creating an execution
// makes concurrent flushers wait for the same execution. The active ID is
// readable without mu so callers never wait behind a pending create.
type session struct {
	mu         sync.Mutex
	id         atomic.Pointer[int64]
	generation uint64
}

func (s *session) current() (int64, bool) {
	id := s.id.Load()
	if id == nil {
		return 0, false
	}
	return *id, true
}

type coordinator struct {
	streamID   int64
	bufferSize int
	transport  Transport
	logger     log.Logger
	stats      *Stats

	// cycle is held shared by threshold flushes and exclusively by commit
	// and abort, so an execution is never finalized under an in-flight part.
	cycle sync.RWMutex

	session session
	part    atomic.Int64

	bufMu sync.Mutex
	buf   []byte
}

func newCoordinator(transport Transport, config Config) *coordinator {
	return &coordinator{
		streamID:   config.StreamID,
		bufferSize: config.BufferSize,
		transport:  transport,
		logger:     config.Logger,
		stats:      NewStats(),
		buf:        make([]byte, 0, bufferCapacity(config.BufferSize)),
	}
}

func bufferCapacity(size int) int {
	return size * 3 / 2
}

func (c *coordinator) write(ctx context.Context, data []byte) (*Execution, error) {
	c.bufMu.Lock()
	c.buf = append(c.buf, data...)
	size := len(c.buf)
	c.bufMu.Unlock()

	if size < c.bufferSize {
		c.logger.Debugf("Buffering upload (%s of %s)", units.BytesSize(float64(size)), units.BytesSize(float64(c.bufferSize)))
		return nil, nil
	}

	return c.flush(ctx)
}

func (c *coordinator) flush(ctx context.Context) (*Execution, error) {
	c.cycle.RLock()
	defer c.cycle.RUnlock()

	// A finalize may have drained the buffer while this flush was waiting.
	if c.buffered() < c.bufferSize {
		return nil, nil
	}

	executionID, err := c.executionID(ctx)
	if err != nil {
		return nil, err
	}

	data := c.takeBuffer()
	if len(data) == 0 {
		// Another producer flushed first.
		return nil, nil
	}

	execution, err := c.uploadPart(ctx, executionID, data)
	if err != nil {
		return nil, err
	}
	return &execution, nil
}

func (c *coordinator) commit(ctx context.Context) (Execution, error) {
	c.cycle.Lock()
	defer c.cycle.Unlock()

	executionID, err := c.executionID(ctx)
	if err != nil {
		return Execution{}, err
	}

	if _, err := c.uploadPart(ctx, executionID, c.takeBuffer()); err != nil {
		return Execution{}, err
	}

	c.logger.Infof("Committing execution %d of stream %d", executionID, c.streamID)
	execution, err := c.transport.CommitExecution(ctx, c.streamID, executionID)
	if err != nil {
		return Execution{}, fmt.Errorf("commit execution %d: %w", executionID, err)
	}

	c.reset()
	c.stats.incCommitted()
	return execution, nil
}

func (c *coordinator) abort(ctx context.Context) (Execution, error) {
	if _, ok := c.session.current(); !ok {
		return Execution{}, ErrNoActiveExecution
	}

	c.cycle.Lock()
	defer c.cycle.Unlock()

	// Checked again: a commit may have finished while waiting for the lock.
	executionID, ok := c.session.current()
	if !ok {
		return Execution{}, ErrNoActiveExecution
	}

	c.logger.Infof("Aborting execution %d of stream %d", executionID, c.streamID)
	execution, err := c.transport.AbortExecution(ctx, c.streamID, executionID)
	if err != nil {
		return Execution{}, fmt.Errorf("abort execution %d: %w", executionID, err)
	}

	c.takeBuffer()
	c.reset()
	c.stats.incAborted()
	return execution, nil
}

// executionID returns the active execution, creating it on first use.
func (c *coordinator) executionID(ctx context.Context) (int64, error) {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()

	if id, ok := c.session.current(); ok {
		return id, nil
	}

	execution, err := c.transport.CreateExecution(ctx, c.streamID)
	if err != nil {
		return 0, fmt.Errorf("create execution for stream %d: %w", c.streamID, err)
	}
	id := execution.ID
	c.session.id.Store(&id)
	c.session.generation++
	c.logger.Infof("Started execution %d of stream %d (generation %d)", execution.ID, c.streamID, c.session.generation)

	return execution.ID, nil
}

func (c *coordinator) buffered() int {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	return len(c.buf)
}

// takeBuffer swaps the buffer for an empty one and returns its contents.
func (c *coordinator) takeBuffer() []byte {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()

	data := c.buf
	c.buf = make([]byte, 0, bufferCapacity(c.bufferSize))
	return data
}

func (c *coordinator) uploadPart(ctx context.Context, executionID int64, data []byte) (Execution, error) {
	part := c.part.Add(1)
	c.logger.Debugf("Uploading data part %d of execution %d (%s)", part, executionID, units.BytesSize(float64(len(data))))

	start := time.Now()
	execution, err := c.transport.UploadPart(ctx, c.streamID, executionID, part, data)
	if err != nil {
		return Execution{}, fmt.Errorf("upload data part %d of execution %d: %w", part, executionID, err)
	}
	c.stats.UpdatePart(len(data), time.Since(start))

	return execution, nil
}

// reset returns to the unstarted state. Callers hold cycle exclusively.
func (c *coordinator) reset() {
	c.session.id.Store(nil)

	c.part.Store(0)
}
