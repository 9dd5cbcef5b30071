package streams

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingCodec rejects rows whose value is "bad".
type failingCodec struct {
	CSVCodec[testRow]
}

func (c failingCodec) Encode(rows []testRow) ([]byte, error) {
	for _, row := range rows {
		if row.Value == "bad" {
			return nil, errors.New("bad row")
		}
	}
	return c.CSVCodec.Encode(rows)
}

func TestRun_UploadsAllBatchesAndCommits(t *testing.T) {
	transport := &fakeTransport{}
	client := newTestClient(t, transport, 32)

	batches := make(chan []testRow)
	go func() {
		defer close(batches)
		for i := 0; i < 40; i++ {
			batches <- []testRow{{Value: fmt.Sprintf("row-%d", i)}}
		}
	}()

	execution, err := Run(context.Background(), client, batches, RunOptions{Concurrency: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(1), execution.ID)
	assert.Equal(t, []int64{1}, transport.commits)

	rows := 0
	for _, part := range transport.recordedParts() {
		rows += bytes.Count(part.data, []byte("\n"))
	}
	assert.Equal(t, 40, rows)
}

func TestRun_CollectsBatchErrors(t *testing.T) {
	transport := &fakeTransport{}
	client, err := NewClientWithCodec[testRow](transport, Config{StreamID: testStreamID, BufferSize: 1024, Logger: log.NewLogger()}, failingCodec{})
	require.NoError(t, err)

	batches := make(chan []testRow, 3)
	batches <- []testRow{{Value: "good"}}
	batches <- []testRow{{Value: "bad"}}
	batches <- []testRow{{Value: "fine"}}
	close(batches)

	execution, err := Run(context.Background(), client, batches, RunOptions{Concurrency: 2})
	require.Error(t, err)
	var serializationErr *SerializationError
	assert.ErrorAs(t, err, &serializationErr)
	assert.Equal(t, int64(1), execution.ID)
	assert.Len(t, transport.commits, 1)
}

func TestRun_CancelledContextSkipsCommit(t *testing.T) {
	transport := &fakeTransport{}
	client := newTestClient(t, transport, 1024)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batches := make(chan []testRow)
	_, err := Run(ctx, client, batches, RunOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, transport.recordedCalls())
}
