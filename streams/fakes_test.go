package streams

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

type uploadedPart struct {
	executionID int64
	part        int64
	data        []byte
}

// fakeTransport records every call and hands out increasing execution IDs.
type fakeTransport struct {
	mu              sync.Mutex
	nextExecutionID int64
	calls           []string
	parts           []uploadedPart
	commits         []int64
	aborts          []int64

	createErr error
	uploadErr error
	commitErr error
	abortErr  error
}

func (f *fakeTransport) CreateExecution(_ context.Context, _ int64) (Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		return Execution{}, f.createErr
	}
	f.nextExecutionID++
	return Execution{ID: f.nextExecutionID, CurrentState: "ACTIVE"}, nil
}

func (f *fakeTransport) UploadPart(_ context.Context, _ int64, executionID, part int64, data []byte) (Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "part")
	if f.uploadErr != nil {
		return Execution{}, f.uploadErr
	}
	f.parts = append(f.parts, uploadedPart{executionID: executionID, part: part, data: append([]byte(nil), data...)})
	return Execution{ID: executionID, CurrentState: "ACTIVE"}, nil
}

func (f *fakeTransport) CommitExecution(_ context.Context, _ int64, executionID int64) (Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "commit")
	if f.commitErr != nil {
		return Execution{}, f.commitErr
	}
	f.commits = append(f.commits, executionID)
	return Execution{ID: executionID, CurrentState: "SUCCESS"}, nil
}

func (f *fakeTransport) AbortExecution(_ context.Context, _ int64, executionID int64) (Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "abort")
	if f.abortErr != nil {
		return Execution{}, f.abortErr
	}
	f.aborts = append(f.aborts, executionID)
	return Execution{ID: executionID, CurrentState: "ABORTED"}, nil
}

func (f *fakeTransport) recordedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) recordedParts() []uploadedPart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uploadedPart(nil), f.parts...)
}

func (f *fakeTransport) setCommitErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitErr = err
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) CreateExecution(ctx context.Context, streamID int64) (Execution, error) {
	args := m.Called(ctx, streamID)
	return args.Get(0).(Execution), args.Error(1)
}

func (m *mockTransport) UploadPart(ctx context.Context, streamID, executionID, part int64, data []byte) (Execution, error) {
	args := m.Called(ctx, streamID, executionID, part, data)
	return args.Get(0).(Execution), args.Error(1)
}

func (m *mockTransport) CommitExecution(ctx context.Context, streamID, executionID int64) (Execution, error) {
	args := m.Called(ctx, streamID, executionID)
	return args.Get(0).(Execution), args.Error(1)
}

func (m *mockTransport) AbortExecution(ctx context.Context, streamID, executionID int64) (Execution, error) {
	args := m.Called(ctx, streamID, executionID)
	return args.Get(0).(Execution), args.Error(1)
}

type testRow struct {
	Value string
}

// blockingTransport holds the first CreateExecution call until release is
// closed. entered is closed once that call arrives.
type blockingTransport struct {
	*fakeTransport
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{
		fakeTransport: &fakeTransport{},
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (b *blockingTransport) CreateExecution(ctx context.Context, streamID int64) (Execution, error) {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.entered)
		<-b.release
	}
	return b.fakeTransport.CreateExecution(ctx, streamID)
}
